// Package ageing turns finalized FIFO layers into age-range histograms.
package ageing

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/fifo"
)

// ErrEmptyRangeConfiguration is reported alongside a valid Histogram when no
// boundaries were configured. The histogram then has one "all ages" range.
var ErrEmptyRangeConfiguration = errors.New("no age range boundaries configured")

// Range is one age bucket. Upper is nil for the open-ended last range.
type Range struct {
	Label string `json:"label"`
	// Lower is exclusive except for the first range, which starts at 0 inclusive.
	Lower int            `json:"lower"`
	Upper *int           `json:"upper,omitempty"`
	Qty   types.Quantity `json:"qty"`
	Value types.Money    `json:"value"`
}

// Histogram is the age profile of one group key.
type Histogram struct {
	Ranges []Range `json:"ranges"`
	// EarliestAge is the age of the oldest backed layer, LatestAge of the newest.
	EarliestAge int `json:"earliestAge"`
	LatestAge   int `json:"latestAge"`
	// AverageAge is weighted by quantity.
	AverageAge float64        `json:"averageAge"`
	TotalQty   types.Quantity `json:"totalQty"`
	TotalValue types.Money    `json:"totalValue"`
}

// ValidateBoundaries checks that boundaries are non-negative and strictly ascending.
func ValidateBoundaries(boundaries []int) error {
	for i, b := range boundaries {
		if b < 0 {
			return apperror.NewValidation(fmt.Sprintf("age range boundary %d is negative", b))
		}
		if i > 0 && b <= boundaries[i-1] {
			return apperror.NewValidation("age range boundaries must be strictly ascending").
				WithDetail("boundaries", boundaries)
		}
	}
	return nil
}

// NewRanges builds the empty partition [0,b1], (b1,b2], ..., (bn,inf).
func NewRanges(boundaries []int) []Range {
	ranges := make([]Range, 0, len(boundaries)+1)
	lower := 0
	for i, b := range boundaries {
		upper := b
		label := strconv.Itoa(lower) + "-" + strconv.Itoa(b)
		if i > 0 {
			label = strconv.Itoa(lower+1) + "-" + strconv.Itoa(b)
		}
		ranges = append(ranges, Range{Label: label, Lower: lower, Upper: &upper, Value: types.Zero()})
		lower = b
	}

	label := "all"
	if len(boundaries) > 0 {
		label = strconv.Itoa(lower+1) + "+"
	}
	return append(ranges, Range{Label: label, Lower: lower, Value: types.Zero()})
}

// Bucketize computes the age histogram of layers as of cutoff.
//
// Layers with zero or negative quantity contribute to no range and to no age
// statistic. When boundaries is empty the histogram has a single range and
// ErrEmptyRangeConfiguration is returned with it; callers should treat that as
// a warning.
func Bucketize(layers []fifo.CostLayer, cutoff time.Time, boundaries []int) (Histogram, error) {
	if err := ValidateBoundaries(boundaries); err != nil {
		return Histogram{}, err
	}

	h := Histogram{Ranges: NewRanges(boundaries), TotalValue: types.Zero()}

	var weighted float64
	first := true
	for _, l := range layers {
		if !l.Backed() {
			continue
		}
		age := Age(l, cutoff)

		idx := rangeIndex(h.Ranges, age)
		h.Ranges[idx].Qty += l.Qty
		h.Ranges[idx].Value = h.Ranges[idx].Value.Add(l.Value)

		h.TotalQty += l.Qty
		h.TotalValue = h.TotalValue.Add(l.Value)
		weighted += l.Qty.Float64() * float64(age)

		if first || age > h.EarliestAge {
			h.EarliestAge = age
		}
		if first || age < h.LatestAge {
			h.LatestAge = age
		}
		first = false
	}

	if h.TotalQty.IsPositive() {
		h.AverageAge = weighted / h.TotalQty.Float64()
	}

	if len(boundaries) == 0 {
		return h, ErrEmptyRangeConfiguration
	}
	return h, nil
}

// Age returns the layer age in calendar days at cutoff.
func Age(l fifo.CostLayer, cutoff time.Time) int {
	return types.DaysBetween(l.OriginDate, cutoff)
}

// rangeIndex relies on ranges being ascending: the first range whose upper
// bound is not below age wins. Future-dated layers (negative age) fall into
// the first range.
func rangeIndex(ranges []Range, age int) int {
	for i, r := range ranges {
		if r.Upper == nil || age <= *r.Upper {
			return i
		}
	}
	return len(ranges) - 1
}
