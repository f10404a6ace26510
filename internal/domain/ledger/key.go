package ledger

import (
	"fmt"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
)

// Granularity selects which event fields form the grouping tuple.
type Granularity string

const (
	// GranularityItem groups by item only.
	GranularityItem Granularity = "item"
	// GranularityItemWarehouse groups by item and warehouse.
	GranularityItemWarehouse Granularity = "item_warehouse"
	// GranularityItemWarehouseLot groups by item, warehouse and invoice/lot tag.
	GranularityItemWarehouseLot Granularity = "item_warehouse_lot"
	// GranularityItemLot groups by item and invoice/lot tag, folding warehouses.
	GranularityItemLot Granularity = "item_lot"
)

// ParseGranularity converts an API value into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.TrimSpace(s)); g {
	case GranularityItem, GranularityItemWarehouse, GranularityItemWarehouseLot, GranularityItemLot:
		return g, nil
	case "":
		return GranularityItemWarehouse, nil
	default:
		return "", apperror.NewValidation(fmt.Sprintf("unknown granularity %q", s))
	}
}

// IncludesWarehouse reports whether the key carries the warehouse.
func (g Granularity) IncludesWarehouse() bool {
	return g == GranularityItemWarehouse || g == GranularityItemWarehouseLot
}

// IncludesLot reports whether the key carries the lot tag.
func (g Granularity) IncludesLot() bool {
	return g == GranularityItemWarehouseLot || g == GranularityItemLot
}

// WarehouseWise returns the warehouse-level granularity that, once folded
// by fifo.Aggregate, yields g. Granularities with a warehouse return themselves.
func (g Granularity) WarehouseWise() Granularity {
	switch g {
	case GranularityItem:
		return GranularityItemWarehouse
	case GranularityItemLot:
		return GranularityItemWarehouseLot
	default:
		return g
	}
}

// GroupKey partitions the ledger into independent FIFO queues.
// Fields not selected by the granularity are empty.
type GroupKey struct {
	ItemID      string `json:"itemId"`
	WarehouseID string `json:"warehouseId,omitempty"`
	LotTag      string `json:"lotTag,omitempty"`
}

// WithoutWarehouse returns the key with the warehouse folded away.
func (k GroupKey) WithoutWarehouse() GroupKey {
	k.WarehouseID = ""
	return k
}

// Project narrows k to the fields selected by g.
func (k GroupKey) Project(g Granularity) GroupKey {
	if !g.IncludesWarehouse() {
		k.WarehouseID = ""
	}
	if !g.IncludesLot() {
		k.LotTag = ""
	}
	return k
}

// String renders the key for logs and error details.
func (k GroupKey) String() string {
	var b strings.Builder
	b.WriteString(k.ItemID)
	if k.WarehouseID != "" {
		b.WriteString("@")
		b.WriteString(k.WarehouseID)
	}
	if k.LotTag != "" {
		b.WriteString("#")
		b.WriteString(k.LotTag)
	}
	return b.String()
}

// Less orders keys by item, warehouse, lot for stable report output.
func (k GroupKey) Less(other GroupKey) bool {
	if k.ItemID != other.ItemID {
		return k.ItemID < other.ItemID
	}
	if k.WarehouseID != other.WarehouseID {
		return k.WarehouseID < other.WarehouseID
	}
	return k.LotTag < other.LotTag
}

// BuildKey derives the grouping tuple of ev for granularity g.
func BuildKey(ev *MovementEvent, g Granularity) (GroupKey, error) {
	if strings.TrimSpace(ev.ItemID) == "" {
		return GroupKey{}, apperror.NewMalformedEvent(ev.VoucherID, "item_id is required")
	}

	key := GroupKey{ItemID: ev.ItemID}
	if g.IncludesWarehouse() {
		if strings.TrimSpace(ev.WarehouseID) == "" {
			return GroupKey{}, apperror.NewMalformedEvent(ev.VoucherID, "warehouse_id is required")
		}
		key.WarehouseID = ev.WarehouseID
	}
	if g.IncludesLot() {
		key.LotTag = ev.LotTag
	}
	return key, nil
}

// Validate checks the fields every engine relies on, independent of grouping.
func Validate(ev *MovementEvent) error {
	if strings.TrimSpace(ev.VoucherID) == "" {
		return apperror.NewMalformedEvent(ev.VoucherID, "voucher_id is required")
	}
	if ev.OccurredAt.IsZero() {
		return apperror.NewMalformedEvent(ev.VoucherID, "occurred_at is required")
	}
	if ev.IsReconciliation && ev.StatedBalanceAfter == nil {
		return apperror.NewMalformedEvent(ev.VoucherID, "stated_balance_after is required for reconciliation events")
	}
	if ev.HasDiscreteUnits && !ev.IsReconciliation && !ev.SignedQty.IsZero() {
		if len(ev.UnitIDs) == 0 {
			return apperror.NewMalformedEvent(ev.VoucherID, "unit_ids are required for items tracked by unit")
		}
		if ev.SignedQty.Abs() != types.NewQuantity(int64(len(ev.UnitIDs))) {
			return apperror.NewMalformedEvent(ev.VoucherID, "quantity must match the number of unit_ids")
		}
	}
	return nil
}
