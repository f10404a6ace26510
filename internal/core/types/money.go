// Package types provides the numeric and calendar primitives shared by the engine.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoney creates a Money value from a float.
// WARNING: Use NewMoneyFromString for precise values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// ProRata returns the share of total that corresponds to part out of whole,
// i.e. total * part / whole. A zero whole yields zero.
func ProRata(total Money, part, whole Quantity) Money {
	if whole.IsZero() {
		return decimal.Zero
	}
	return total.Mul(part.Decimal()).Div(whole.Decimal())
}
