package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Quantity is a fixed-point quantity with 4 decimal places (scale = 1e4).
//
// Stock quantities are summed and compared exactly: the reconciliation
// between cost layers and balance sheets is an equality check and must not
// drift the way float64 sums do.
type Quantity int64

const (
	QuantityScale  int64 = 10_000
	quantityDigits int32 = 4
)

// NewQuantityFromFloat64 rounds v to 4 decimal places.
func NewQuantityFromFloat64(v float64) Quantity {
	return Quantity(math.Round(v * float64(QuantityScale)))
}

// NewQuantity creates a whole-unit quantity.
func NewQuantity(units int64) Quantity { return Quantity(units * QuantityScale) }

// NewQuantityFromDecimal truncates d to 4 decimal places.
func NewQuantityFromDecimal(d decimal.Decimal) Quantity {
	return Quantity(d.Shift(quantityDigits).Truncate(0).IntPart())
}

// ParseQuantity parses a decimal string ("12.5", "-3") into a Quantity.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return NewQuantityFromDecimal(d), nil
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }

func (q Quantity) Float64() float64 { return float64(q) / float64(QuantityScale) }

// Decimal returns the exact decimal representation.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -quantityDigits) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Min returns the smaller of q and other.
func (q Quantity) Min(other Quantity) Quantity {
	if other < q {
		return other
	}
	return q
}

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	return q.Decimal().StringFixed(quantityDigits)
}

// MarshalJSON encodes Quantity as a JSON number with 4 digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	raw := string(data)
	if len(data) >= 2 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}

	parsed, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
