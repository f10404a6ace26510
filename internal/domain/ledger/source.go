package ledger

import (
	"context"
	"sort"
	"time"
)

// Filter narrows the event stream. It is applied by the EventSource, never by the engines.
type Filter struct {
	ItemIDs      []string
	WarehouseIDs []string
	// ToDate bounds the stream (inclusive, calendar day). Zero means unbounded.
	ToDate time.Time
	// FromDate skips events dated before this day. Zero means from the beginning.
	FromDate time.Time
}

// EventSource supplies movement events in (OccurredAt, Sequence) order.
//
// Stream calls fn once per event and stops at the first error returned by fn,
// returning that error. Implementations must honour ctx cancellation and must
// deliver a stable snapshot of the ledger for the whole call.
type EventSource interface {
	Stream(ctx context.Context, filter Filter, fn func(ev MovementEvent) error) error
}

// SliceSource is an in-memory EventSource over a fixed slice.
// Events are sorted once on construction.
type SliceSource struct {
	events []MovementEvent
}

// NewSliceSource creates a SliceSource. The input slice is copied.
func NewSliceSource(events []MovementEvent) *SliceSource {
	sorted := make([]MovementEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Precedes(&sorted[j])
	})
	return &SliceSource{events: sorted}
}

// Stream implements EventSource.
func (s *SliceSource) Stream(ctx context.Context, filter Filter, fn func(ev MovementEvent) error) error {
	items := toSet(filter.ItemIDs)
	warehouses := toSet(filter.WarehouseIDs)

	for _, ev := range s.events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(items) > 0 && !items[ev.ItemID] {
			continue
		}
		if len(warehouses) > 0 && !warehouses[ev.WarehouseID] {
			continue
		}
		if !filter.FromDate.IsZero() && ev.OccurredAt.Before(filter.FromDate) {
			continue
		}
		if !filter.ToDate.IsZero() && ev.OccurredAt.After(endOfDay(filter.ToDate)) {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, -1, t.Location())
}
