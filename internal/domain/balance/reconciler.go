// Package balance computes per-period opening, inbound, outbound and closing
// balances from the movement stream, independently of the FIFO engine.
package balance

import (
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

// PeriodBalance is one balance-sheet row.
type PeriodBalance struct {
	Key         ledger.GroupKey `json:"key"`
	PeriodStart time.Time       `json:"periodStart"`
	PeriodEnd   time.Time       `json:"periodEnd"`

	OpeningQty types.Quantity `json:"openingQty"`
	OpeningVal types.Money    `json:"openingVal"`
	InQty      types.Quantity `json:"inQty"`
	InVal      types.Money    `json:"inVal"`
	OutQty     types.Quantity `json:"outQty"`
	OutVal     types.Money    `json:"outVal"`
	ClosingQty types.Quantity `json:"closingQty"`
	ClosingVal types.Money    `json:"closingVal"`
}

// ValuationRate is closing value per unit, zero without closing stock.
func (b *PeriodBalance) ValuationRate() types.Money {
	if b.ClosingQty.IsZero() {
		return types.Zero()
	}
	return b.ClosingVal.Div(b.ClosingQty.Decimal())
}

// IsZero reports whether the row carries no quantity and no value at all.
func (b *PeriodBalance) IsZero() bool {
	return b.OpeningQty.IsZero() && b.InQty.IsZero() && b.OutQty.IsZero() && b.ClosingQty.IsZero() &&
		b.OpeningVal.IsZero() && b.InVal.IsZero() && b.OutVal.IsZero() && b.ClosingVal.IsZero()
}

// BaselineEntry is one key's closing position in a snapshot.
type BaselineEntry struct {
	Qty   types.Quantity `json:"qty"`
	Value types.Money    `json:"value"`
}

// Baseline is a closing snapshot reused as opening position. Entries are
// keyed at item_warehouse_lot granularity so every report grouping can
// be derived from them.
type Baseline struct {
	AsOf    time.Time                         `json:"asOf"`
	Entries map[ledger.GroupKey]BaselineEntry `json:"-"`
}

// Reconciler classifies events into opening, in-period inbound and
// in-period outbound movements. The running balance used for reconciliation
// events is tracked per warehouse-level key so that reconciliations stay
// per warehouse even when rows are reported per item.
type Reconciler struct {
	start, end  time.Time
	granularity ledger.Granularity
	skipUntil   time.Time

	// openingUntil bounds events marked IsOpening. It equals end unless the
	// reconciler is one period of a longer range.
	openingUntil time.Time

	running map[ledger.GroupKey]types.Quantity
	rows    map[ledger.GroupKey]*PeriodBalance
	err     error
}

// NewReconciler creates a reconciler for the inclusive day range [start, end].
// A non-nil baseline dated before start seeds opening balances, and events
// dated on or before baseline.AsOf are then skipped.
func NewReconciler(start, end time.Time, g ledger.Granularity, baseline *Baseline) *Reconciler {
	r := &Reconciler{
		start:        types.Day(start),
		end:          types.Day(end),
		granularity:  g,
		openingUntil: types.Day(end),
		running:      make(map[ledger.GroupKey]types.Quantity),
		rows:         make(map[ledger.GroupKey]*PeriodBalance),
	}
	if baseline != nil && !baseline.AsOf.IsZero() && types.BeforeDay(baseline.AsOf, r.start) {
		r.skipUntil = types.Day(baseline.AsOf)
		for key, entry := range baseline.Entries {
			r.running[key.Project(g.WarehouseWise())] += entry.Qty
			row := r.row(key.Project(g))
			row.OpeningQty += entry.Qty
			row.OpeningVal = row.OpeningVal.Add(entry.Value)
		}
	}
	return r
}

// Reconcile runs a fresh reconciler over events.
func Reconcile(events []ledger.MovementEvent, start, end time.Time, g ledger.Granularity, baseline *Baseline) (map[ledger.GroupKey]*PeriodBalance, error) {
	r := NewReconciler(start, end, g, baseline)
	for i := range events {
		if err := r.Apply(events[i]); err != nil {
			return nil, err
		}
	}
	return r.Results(), nil
}

// Apply classifies one event. The first error is sticky.
func (r *Reconciler) Apply(ev ledger.MovementEvent) error {
	if r.err != nil {
		return r.err
	}
	if err := r.apply(&ev); err != nil {
		r.err = err
		r.rows = nil
		return err
	}
	return nil
}

func (r *Reconciler) apply(ev *ledger.MovementEvent) error {
	if err := ledger.Validate(ev); err != nil {
		return err
	}
	limit := r.end
	if ev.IsOpening {
		limit = r.openingUntil
	}
	if types.AfterDay(ev.OccurredAt, limit) {
		return nil
	}
	if !r.skipUntil.IsZero() && !types.AfterDay(ev.OccurredAt, r.skipUntil) {
		return nil
	}

	runKey, err := ledger.BuildKey(ev, r.granularity.WarehouseWise())
	if err != nil {
		return err
	}

	qty := ev.SignedQty
	if ev.IsReconciliation {
		stated := *ev.StatedBalanceAfter
		if stated.IsNegative() {
			return apperror.NewInconsistentReconciliation(ev.VoucherID, stated.String(), r.running[runKey].String()).
				WithDetail("key", runKey.String())
		}
		qty = stated - r.running[runKey]
	}
	r.running[runKey] += qty

	row := r.row(runKey.Project(r.granularity))
	if ev.IsOpening || types.BeforeDay(ev.OccurredAt, r.start) {
		row.OpeningQty += qty
		row.OpeningVal = row.OpeningVal.Add(ev.ValueDelta)
		return nil
	}

	switch {
	case qty.IsPositive():
		row.InQty += qty
		row.InVal = row.InVal.Add(ev.ValueDelta)
	case qty.IsNegative():
		row.OutQty += qty.Neg()
		row.OutVal = row.OutVal.Sub(ev.ValueDelta)
	case ev.ValueDelta.IsPositive():
		// Value-only adjustment, e.g. a landed cost revaluation.
		row.InVal = row.InVal.Add(ev.ValueDelta)
	case ev.ValueDelta.IsNegative():
		row.OutVal = row.OutVal.Sub(ev.ValueDelta)
	}
	return nil
}

func (r *Reconciler) row(key ledger.GroupKey) *PeriodBalance {
	row, ok := r.rows[key]
	if !ok {
		row = &PeriodBalance{
			Key:         key,
			PeriodStart: r.start,
			PeriodEnd:   r.end,
			OpeningVal:  types.Zero(),
			InVal:       types.Zero(),
			OutVal:      types.Zero(),
		}
		r.rows[key] = row
	}
	return row
}

// Results returns the finished rows with closing figures filled in,
// or nil when the run failed.
func (r *Reconciler) Results() map[ledger.GroupKey]*PeriodBalance {
	if r.err != nil {
		return nil
	}
	out := make(map[ledger.GroupKey]*PeriodBalance, len(r.rows))
	for key, row := range r.rows {
		b := *row
		b.ClosingQty = b.OpeningQty + b.InQty - b.OutQty
		b.ClosingVal = b.OpeningVal.Add(b.InVal).Sub(b.OutVal)
		out[key] = &b
	}
	return out
}

// PeriodSet reconciles consecutive periods from a single pass over the stream.
// Events marked IsOpening belong to the opening position of the whole range,
// so they count as opening in every period and the closing balance of one
// period always equals the opening balance of the next.
type PeriodSet struct {
	periods     []Period
	reconcilers []*Reconciler
}

// NewPeriodSet creates one reconciler per period, all sharing baseline.
func NewPeriodSet(periods []Period, g ledger.Granularity, baseline *Baseline) *PeriodSet {
	set := &PeriodSet{periods: periods, reconcilers: make([]*Reconciler, len(periods))}
	var rangeEnd time.Time
	if len(periods) > 0 {
		rangeEnd = types.Day(periods[len(periods)-1].End)
	}
	for i, p := range periods {
		r := NewReconciler(p.Start, p.End, g, baseline)
		r.openingUntil = rangeEnd
		set.reconcilers[i] = r
	}
	return set
}

// Apply feeds ev to every period.
func (s *PeriodSet) Apply(ev ledger.MovementEvent) error {
	for _, r := range s.reconcilers {
		if err := r.Apply(ev); err != nil {
			return err
		}
	}
	return nil
}

// Results returns the rows period by period, ordered by key within a period.
func (s *PeriodSet) Results() []*PeriodBalance {
	var out []*PeriodBalance
	for _, r := range s.reconcilers {
		out = append(out, SortedRows(r.Results())...)
	}
	return out
}

// SortedRows returns the rows ordered by key.
func SortedRows(rows map[ledger.GroupKey]*PeriodBalance) []*PeriodBalance {
	out := make([]*PeriodBalance, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}
