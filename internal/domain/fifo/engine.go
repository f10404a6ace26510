package fifo

import (
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

// Stats summarises one engine run.
type Stats struct {
	Applied            int
	SkippedAfterCutoff int
	Reconciliations    int
	SyntheticNegatives int
	Reclaims           int
}

// Engine consumes movement events in order and maintains one FIFO queue per
// group key plus a transfer bucket per (voucher, key).
//
// An Engine belongs to a single run and is not safe for concurrent use.
// After the first error it refuses further events and yields no results:
// a half-built set of queues is never returned.
type Engine struct {
	granularity ledger.Granularity
	cutoff      time.Time

	queues    map[ledger.GroupKey]*queue
	transfers map[transferKey][]bucketEntry

	stats Stats
	err   error
}

// NewEngine creates an engine grouping by g. Events dated after the cutoff
// day are ignored; a zero cutoff accepts everything.
func NewEngine(g ledger.Granularity, cutoff time.Time) *Engine {
	return &Engine{
		granularity: g,
		cutoff:      cutoff,
		queues:      make(map[ledger.GroupKey]*queue),
		transfers:   make(map[transferKey][]bucketEntry),
	}
}

// Process runs a fresh engine over events and returns the final queues.
func Process(events []ledger.MovementEvent, g ledger.Granularity, cutoff time.Time) (map[ledger.GroupKey]*QueueResult, error) {
	e := NewEngine(g, cutoff)
	for i := range events {
		if err := e.Apply(events[i]); err != nil {
			return nil, err
		}
	}
	return e.Results(), nil
}

// Stats returns counters of the run so far.
func (e *Engine) Stats() Stats { return e.stats }

// Apply feeds one event into the engine.
func (e *Engine) Apply(ev ledger.MovementEvent) error {
	if e.err != nil {
		return e.err
	}
	if err := e.apply(&ev); err != nil {
		e.err = err
		e.queues = nil
		e.transfers = nil
		return err
	}
	return nil
}

func (e *Engine) apply(ev *ledger.MovementEvent) error {
	if err := ledger.Validate(ev); err != nil {
		return err
	}
	if !e.cutoff.IsZero() && types.AfterDay(ev.OccurredAt, e.cutoff) {
		e.stats.SkippedAfterCutoff++
		return nil
	}

	key, err := ledger.BuildKey(ev, e.granularity)
	if err != nil {
		return err
	}

	q, ok := e.queues[key]
	if !ok {
		q = &queue{}
		e.queues[key] = q
	}
	if q.seen && (ev.OccurredAt.Before(q.lastAt) || (ev.OccurredAt.Equal(q.lastAt) && ev.Sequence < q.lastSeq)) {
		return apperror.NewMalformedEvent(ev.VoucherID, "event out of (occurred_at, sequence) order").
			WithDetail("key", key.String())
	}
	q.seen, q.lastAt, q.lastSeq = true, ev.OccurredAt, ev.Sequence

	qty := ev.SignedQty
	if ev.IsReconciliation {
		stated := *ev.StatedBalanceAfter
		if stated.IsNegative() {
			return apperror.NewInconsistentReconciliation(ev.VoucherID, stated.String(), q.qtyAfter.String()).
				WithDetail("key", key.String())
		}
		qty = stated - q.qtyAfter
		e.stats.Reconciliations++
	}

	if ev.HasDiscreteUnits {
		q.discrete = true
		if !qty.IsZero() && qty.Abs() != types.NewQuantity(int64(len(ev.UnitIDs))) {
			return apperror.NewMalformedEvent(ev.VoucherID, "quantity must match the number of unit_ids").
				WithDetail("key", key.String()).
				WithDetail("qty", qty.String()).
				WithDetail("units", len(ev.UnitIDs))
		}
	}

	date := ev.EffectiveDate()
	switch {
	case qty.IsPositive() && ev.HasDiscreteUnits:
		err = q.receiveUnits(ev, date)
	case qty.IsNegative() && ev.HasDiscreteUnits:
		err = q.issueUnits(ev, date)
	case qty.IsPositive():
		e.inbound(q, key, ev, qty, date)
	case qty.IsNegative():
		e.outbound(q, key, ev, qty.Neg(), date)
	}
	if err != nil {
		return err
	}

	q.qtyAfter += qty
	e.stats.Applied++
	return nil
}

func (e *Engine) inbound(q *queue, key ledger.GroupKey, ev *ledger.MovementEvent, qty types.Quantity, date time.Time) {
	tk := transferKey{voucherID: ev.VoucherID, key: key}
	if len(e.transfers[tk]) > 0 {
		e.reclaim(q, tk, ev, qty, date)
		return
	}

	q.receive(CostLayer{Qty: qty, Value: ev.ValueDelta, OriginDate: date, LotTag: ev.LotTag})
}

// reclaim moves layers from the transfer bucket back into the queue.
// Shortfall entries are settled first so that the negative layer they created
// is cancelled before real stock is restored; the remaining entries follow
// oldest first. Quantity beyond the bucket becomes a new layer. The inbound
// value not explained by reclaimed layers lands on the last layer placed.
func (e *Engine) reclaim(q *queue, tk transferKey, ev *ledger.MovementEvent, qty types.Quantity, date time.Time) {
	bucket := shortfallsFirst(e.transfers[tk])
	valueLeft := ev.ValueDelta
	toPlace := qty
	e.stats.Reclaims++

	for toPlace.IsPositive() {
		var slot bucketEntry
		fresh := false

		switch {
		case len(bucket) == 0:
			slot = bucketEntry{layer: CostLayer{Qty: toPlace, Value: types.Zero(), OriginDate: date, LotTag: ev.LotTag}}
			fresh = true
		case bucket[0].layer.Qty <= toPlace:
			slot = bucket[0]
			bucket = bucket[1:]
		default:
			slot = bucket[0]
			slot.layer.Qty = toPlace
			slot.layer.Value = types.ProRata(bucket[0].layer.Value, toPlace, bucket[0].layer.Qty)
			bucket[0].layer.Qty -= toPlace
			bucket[0].layer.Value = bucket[0].layer.Value.Sub(slot.layer.Value)
		}

		valueLeft = valueLeft.Sub(slot.layer.Value)
		toPlace -= slot.layer.Qty
		if toPlace.IsZero() {
			slot.layer.Value = slot.layer.Value.Add(valueLeft)
		}

		switch {
		case fresh:
			q.receive(slot.layer)
		case slot.shortfall:
			q.settle(slot.layer)
		default:
			q.restore(slot.layer)
		}
	}

	if len(bucket) == 0 {
		delete(e.transfers, tk)
		return
	}
	e.transfers[tk] = bucket
}

// shortfallsFirst reorders a bucket so shortfall entries lead, keeping the
// relative order within each group.
func shortfallsFirst(bucket []bucketEntry) []bucketEntry {
	out := make([]bucketEntry, 0, len(bucket))
	for _, b := range bucket {
		if b.shortfall {
			out = append(out, b)
		}
	}
	for _, b := range bucket {
		if !b.shortfall {
			out = append(out, b)
		}
	}
	return out
}

func (e *Engine) outbound(q *queue, key ledger.GroupKey, ev *ledger.MovementEvent, qty types.Quantity, date time.Time) {
	tk := transferKey{voucherID: ev.VoucherID, key: key}
	toPop := qty
	valueLeft := ev.ValueDelta.Abs()

	for toPop.IsPositive() {
		front := q.front()
		switch {
		case front == nil:
			// Oversold: the shortfall becomes a negative layer, and is also
			// parked in the bucket so a correcting inbound neutralises it.
			q.layers = append(q.layers, CostLayer{Qty: toPop.Neg(), Value: valueLeft.Neg(), OriginDate: date, LotTag: ev.LotTag})
			e.recordShortfall(tk, CostLayer{Qty: toPop, Value: valueLeft, OriginDate: date, LotTag: ev.LotTag})
			e.stats.SyntheticNegatives++
			toPop = 0

		case front.Backed() && front.Qty <= toPop:
			popped := *front
			q.layers = q.layers[1:]
			toPop -= popped.Qty
			valueLeft = valueLeft.Sub(popped.Value)
			e.record(tk, popped)

		case front.Backed():
			part := CostLayer{
				Qty:        toPop,
				Value:      types.ProRata(front.Value, toPop, front.Qty),
				OriginDate: front.OriginDate,
				LotTag:     front.LotTag,
			}
			front.Qty -= toPop
			front.Value = front.Value.Sub(part.Value)
			e.record(tk, part)
			toPop = 0

		default:
			// Already oversold: deepen the negative layer.
			front.Qty -= toPop
			front.Value = front.Value.Sub(valueLeft)
			e.recordShortfall(tk, CostLayer{Qty: toPop, Value: valueLeft, OriginDate: front.OriginDate, LotTag: front.LotTag})
			toPop = 0
		}
	}
}

func (e *Engine) record(tk transferKey, layer CostLayer) {
	e.transfers[tk] = append(e.transfers[tk], bucketEntry{layer: layer})
}

// recordShortfall parks a portion that was never backed by stock.
func (e *Engine) recordShortfall(tk transferKey, layer CostLayer) {
	e.transfers[tk] = append(e.transfers[tk], bucketEntry{layer: layer, shortfall: true})
}

// Results returns a copy of every queue's final state. Ageing is not computed
// here; see package ageing.
func (e *Engine) Results() map[ledger.GroupKey]*QueueResult {
	if e.err != nil {
		return nil
	}
	out := make(map[ledger.GroupKey]*QueueResult, len(e.queues))
	for key, q := range e.queues {
		layers := make([]CostLayer, len(q.layers))
		copy(layers, q.layers)
		out[key] = &QueueResult{
			Key:                 key,
			Layers:              layers,
			QtyAfterTransaction: q.qtyAfter,
			HasDiscreteUnits:    q.discrete,
		}
	}
	return out
}

// PendingTransfers returns the non-empty transfer buckets, ordered by voucher then key.
func (e *Engine) PendingTransfers() []TransferBucket {
	if e.err != nil {
		return nil
	}
	buckets := make([]TransferBucket, 0, len(e.transfers))
	for tk, entries := range e.transfers {
		if len(entries) == 0 {
			continue
		}
		cp := make([]CostLayer, len(entries))
		for i, b := range entries {
			cp[i] = b.layer
		}
		buckets = append(buckets, TransferBucket{VoucherID: tk.voucherID, Key: tk.key, Layers: cp})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].VoucherID != buckets[j].VoucherID {
			return buckets[i].VoucherID < buckets[j].VoucherID
		}
		return buckets[i].Key.Less(buckets[j].Key)
	})
	return buckets
}

// SortedKeys returns the keys of results in stable report order.
func SortedKeys(results map[ledger.GroupKey]*QueueResult) []ledger.GroupKey {
	keys := make([]ledger.GroupKey, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// String is used in debug logs.
func (s Stats) String() string {
	return fmt.Sprintf("applied=%d skipped=%d reconciliations=%d negatives=%d reclaims=%d",
		s.Applied, s.SkippedAfterCutoff, s.Reconciliations, s.SyntheticNegatives, s.Reclaims)
}
