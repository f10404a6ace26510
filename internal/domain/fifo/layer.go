// Package fifo reconstructs the still-unconsumed FIFO cost layers of every
// group key from an ordered stream of movement events.
package fifo

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

// CostLayer is an unconsumed chunk of inventory (a FIFO slot).
// Qty may be negative: that is oversold stock not yet backed by a receipt.
type CostLayer struct {
	// UnitID is set for layers of items tracked unit by unit.
	UnitID     string         `json:"unitId,omitempty"`
	Qty        types.Quantity `json:"qty"`
	Value      types.Money    `json:"value"`
	OriginDate time.Time      `json:"originDate"`
	// LotTag survives aggregation so invoice-level views stay available
	// even when the owning queue is grouped by item only.
	LotTag string `json:"lotTag,omitempty"`
}

// Backed reports whether the layer holds real (positive) stock.
func (l CostLayer) Backed() bool { return l.Qty.IsPositive() }

// QueueResult is the final state of one group key's FIFO queue.
type QueueResult struct {
	Key    ledger.GroupKey `json:"key"`
	Layers []CostLayer     `json:"layers"`
	// QtyAfterTransaction is the running balance after the last applied event.
	QtyAfterTransaction types.Quantity `json:"qtyAfterTransaction"`
	HasDiscreteUnits    bool           `json:"hasDiscreteUnits"`
}

// TotalQty sums remaining quantity over all layers, negative ones included.
func (r *QueueResult) TotalQty() types.Quantity {
	var total types.Quantity
	for _, l := range r.Layers {
		total += l.Qty
	}
	return total
}

// TotalValue sums remaining value over all layers.
func (r *QueueResult) TotalValue() types.Money {
	total := types.Zero()
	for _, l := range r.Layers {
		total = total.Add(l.Value)
	}
	return total
}

// NegativeLayers counts layers with negative remaining quantity.
func (r *QueueResult) NegativeLayers() int {
	n := 0
	for _, l := range r.Layers {
		if l.Qty.IsNegative() {
			n++
		}
	}
	return n
}

// TransferBucket holds layers removed by an outbound event so that an inbound
// event of the same voucher against the same key can reclaim them with their
// original origin dates.
type TransferBucket struct {
	VoucherID string          `json:"voucherId"`
	Key       ledger.GroupKey `json:"key"`
	Layers    []CostLayer     `json:"layers"`
}

// Qty sums the quantity waiting in the bucket.
func (b TransferBucket) Qty() types.Quantity {
	var total types.Quantity
	for _, l := range b.Layers {
		total += l.Qty
	}
	return total
}

// bucketEntry is one parked portion. shortfall marks oversold quantity that
// was never backed by a receipt.
type bucketEntry struct {
	layer     CostLayer
	shortfall bool
}

type transferKey struct {
	voucherID string
	key       ledger.GroupKey
}

// queue is the live FIFO state of one group key.
type queue struct {
	layers   []CostLayer
	qtyAfter types.Quantity
	discrete bool

	seen    bool
	lastAt  time.Time
	lastSeq int64
}

func (q *queue) front() *CostLayer {
	if len(q.layers) == 0 {
		return nil
	}
	return &q.layers[0]
}

// receive adds fresh stock. A non-positive front layer is neutralised in place
// and re-dated instead of opening a layer boundary at zero.
func (q *queue) receive(layer CostLayer) {
	if front := q.front(); front != nil && !front.Backed() {
		absorb(front, layer)
		return
	}
	q.layers = append(q.layers, layer)
}

// restore puts a reclaimed layer back with its original origin date.
// It goes before the first layer dated strictly later, and merges with the
// preceding layer when both share origin date and lot.
func (q *queue) restore(layer CostLayer) {
	if front := q.front(); front != nil && !front.Backed() {
		absorb(front, layer)
		return
	}

	pos := len(q.layers)
	for i, l := range q.layers {
		if l.OriginDate.After(layer.OriginDate) {
			pos = i
			break
		}
	}

	if pos > 0 {
		prev := &q.layers[pos-1]
		if prev.UnitID == "" && prev.Backed() && prev.LotTag == layer.LotTag && prev.OriginDate.Equal(layer.OriginDate) {
			prev.Qty += layer.Qty
			prev.Value = prev.Value.Add(layer.Value)
			return
		}
	}

	q.layers = append(q.layers, CostLayer{})
	copy(q.layers[pos+1:], q.layers[pos:])
	q.layers[pos] = layer
}

// settle reverses a shortfall. It cancels a non-positive front layer without
// re-dating it, so real stock restored afterwards keeps its own origin date.
// With no negative front left the portion is placed like reclaimed stock.
func (q *queue) settle(layer CostLayer) {
	front := q.front()
	if front == nil || front.Backed() {
		q.restore(layer)
		return
	}
	front.Qty += layer.Qty
	front.Value = front.Value.Add(layer.Value)
	switch {
	case front.Qty.IsZero() && front.Value.IsZero():
		q.layers = q.layers[1:]
	case front.Backed():
		front.OriginDate = layer.OriginDate
		front.LotTag = layer.LotTag
	}
}

func absorb(dst *CostLayer, layer CostLayer) {
	dst.Qty += layer.Qty
	dst.Value = dst.Value.Add(layer.Value)
	dst.OriginDate = layer.OriginDate
	dst.LotTag = layer.LotTag
}

func (q *queue) unitIndex(unitID string) int {
	for i, l := range q.layers {
		if l.UnitID == unitID {
			return i
		}
	}
	return -1
}

func unitValue(ev *ledger.MovementEvent) types.Money {
	return types.ProRata(ev.ValueDelta.Abs(), types.NewQuantity(1), types.NewQuantity(int64(len(ev.UnitIDs))))
}

// receiveUnits adds one layer per unit. A unit issued before it was received
// holds a negative layer, which the receipt cancels. Receiving a unit that is
// already in stock is malformed: quantities and layers would drift apart.
func (q *queue) receiveUnits(ev *ledger.MovementEvent, date time.Time) error {
	value := unitValue(ev)
	for _, unitID := range ev.UnitIDs {
		i := q.unitIndex(unitID)
		switch {
		case i < 0:
			q.layers = append(q.layers, CostLayer{
				UnitID:     unitID,
				Qty:        types.NewQuantity(1),
				Value:      value,
				OriginDate: date,
				LotTag:     ev.LotTag,
			})
		case q.layers[i].Backed():
			return apperror.NewMalformedEvent(ev.VoucherID, "unit is already in stock").
				WithDetail("unit_id", unitID)
		default:
			q.layers = append(q.layers[:i], q.layers[i+1:]...)
		}
	}
	return nil
}

// issueUnits removes the named units regardless of position. A unit that is
// not in stock leaves a negative unit layer until it is received.
func (q *queue) issueUnits(ev *ledger.MovementEvent, date time.Time) error {
	value := unitValue(ev)
	for _, unitID := range ev.UnitIDs {
		i := q.unitIndex(unitID)
		switch {
		case i < 0:
			q.layers = append(q.layers, CostLayer{
				UnitID:     unitID,
				Qty:        types.NewQuantity(-1),
				Value:      value.Neg(),
				OriginDate: date,
				LotTag:     ev.LotTag,
			})
		case q.layers[i].Backed():
			q.layers = append(q.layers[:i], q.layers[i+1:]...)
		default:
			return apperror.NewMalformedEvent(ev.VoucherID, "unit was already issued").
				WithDetail("unit_id", unitID)
		}
	}
	return nil
}
