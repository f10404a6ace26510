package balance

import (
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
)

// Periodicity controls how a date range is split into reporting periods.
type Periodicity string

const (
	PeriodicityNone       Periodicity = ""
	PeriodicityWeekly     Periodicity = "weekly"
	PeriodicityMonthly    Periodicity = "monthly"
	PeriodicityQuarterly  Periodicity = "quarterly"
	PeriodicityHalfYearly Periodicity = "half_yearly"
	PeriodicityYearly     Periodicity = "yearly"
)

// Period is an inclusive calendar-day range.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParsePeriodicity validates an API value.
func ParsePeriodicity(s string) (Periodicity, error) {
	switch p := Periodicity(s); p {
	case PeriodicityNone, PeriodicityWeekly, PeriodicityMonthly, PeriodicityQuarterly,
		PeriodicityHalfYearly, PeriodicityYearly:
		return p, nil
	default:
		return "", apperror.NewValidation(fmt.Sprintf("unknown periodicity %q", s))
	}
}

// months returns the calendar length of one period, 0 for weekly and none.
func (p Periodicity) months() int {
	switch p {
	case PeriodicityMonthly:
		return 1
	case PeriodicityQuarterly:
		return 3
	case PeriodicityHalfYearly:
		return 6
	case PeriodicityYearly:
		return 12
	default:
		return 0
	}
}

// SplitPeriods cuts [start, end] into consecutive periods. Monthly and longer
// periods are aligned to calendar boundaries (quarters start in Jan/Apr/Jul/Oct,
// half years in Jan/Jul); weekly periods start on start and run seven days.
// The first and last period are clipped to the range.
func SplitPeriods(start, end time.Time, p Periodicity) ([]Period, error) {
	start, end = types.Day(start), types.Day(end)
	if end.Before(start) {
		return nil, apperror.NewValidation("period end is before period start")
	}
	if p == PeriodicityNone {
		return []Period{{Start: start, End: end}}, nil
	}

	var periods []Period
	for cur := start; !cur.After(end); {
		var next time.Time
		if p == PeriodicityWeekly {
			next = cur.AddDate(0, 0, 7)
		} else {
			n := p.months()
			first := time.Date(cur.Year(), cur.Month(), 1, 0, 0, 0, 0, cur.Location())
			offset := (int(first.Month()) - 1) % n
			next = first.AddDate(0, n-offset, 0)
		}

		last := next.AddDate(0, 0, -1)
		if last.After(end) {
			last = end
		}
		periods = append(periods, Period{Start: cur, End: last})
		cur = next
	}
	return periods, nil
}
