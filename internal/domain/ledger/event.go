// Package ledger defines the validated movement event record consumed by the
// FIFO and balance engines, and the grouping keys that partition it.
package ledger

import (
	"time"

	"stockledger/internal/core/types"
)

// MovementEvent is one immutable record of inventory change.
// It is produced once at the EventSource boundary and never re-inspected as
// loosely-typed data afterwards.
type MovementEvent struct {
	ItemID      string `json:"itemId"`
	WarehouseID string `json:"warehouseId"`
	// LotTag is the invoice/batch identifier, empty when ungrouped.
	LotTag string `json:"lotTag,omitempty"`

	// OccurredAt and Sequence together form the ordering key.
	OccurredAt time.Time `json:"occurredAt"`
	Sequence   int64     `json:"sequence"`

	// ReceivedAt overrides OccurredAt for ageing when present.
	ReceivedAt *time.Time `json:"receivedAt,omitempty"`

	SignedQty  types.Quantity `json:"signedQty"`
	ValueDelta types.Money    `json:"valueDelta"`

	VoucherID   string `json:"voucherId"`
	VoucherType string `json:"voucherType,omitempty"`

	// IsReconciliation means SignedQty is derived from StatedBalanceAfter
	// and the running balance rather than taken as a plain delta.
	IsReconciliation   bool            `json:"isReconciliation"`
	StatedBalanceAfter *types.Quantity `json:"statedBalanceAfter,omitempty"`

	// IsOpening marks an explicit opening-stock entry, counted as opening
	// balance regardless of its date.
	IsOpening bool `json:"isOpening"`

	HasDiscreteUnits bool     `json:"hasDiscreteUnits"`
	UnitIDs          []string `json:"unitIds,omitempty"`
}

// EffectiveDate is the date a layer created or touched by this event ages from.
// The receive-date override always wins over the posting date.
func (e *MovementEvent) EffectiveDate() time.Time {
	if e.ReceivedAt != nil && !e.ReceivedAt.IsZero() {
		return *e.ReceivedAt
	}
	return e.OccurredAt
}

// Precedes reports whether e is ordered strictly before other by (OccurredAt, Sequence).
func (e *MovementEvent) Precedes(other *MovementEvent) bool {
	if e.OccurredAt.Equal(other.OccurredAt) {
		return e.Sequence < other.Sequence
	}
	return e.OccurredAt.Before(other.OccurredAt)
}

// IsInbound reports whether a plain (non-reconciliation) event adds stock.
func (e *MovementEvent) IsInbound() bool { return e.SignedQty.IsPositive() }

// IsOutbound reports whether a plain (non-reconciliation) event removes stock.
func (e *MovementEvent) IsOutbound() bool { return e.SignedQty.IsNegative() }
