// Package ledger_repo streams stock ledger entries from PostgreSQL as
// validated movement events.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

const entriesTable = "stock_ledger_entries"

// entryRow is the raw database shape. Quantities are stored scaled by
// types.QuantityScale; values are numeric and read as text.
type entryRow struct {
	ItemID           string     `db:"item_id"`
	WarehouseID      string     `db:"warehouse_id"`
	LotTag           *string    `db:"lot_tag"`
	OccurredAt       time.Time  `db:"occurred_at"`
	Sequence         int64      `db:"sequence"`
	ReceivedAt       *time.Time `db:"received_at"`
	Qty              int64      `db:"qty"`
	Value            string     `db:"value"`
	VoucherNo        string     `db:"voucher_no"`
	VoucherType      string     `db:"voucher_type"`
	IsReconciliation bool       `db:"is_reconciliation"`
	StatedBalance    *int64     `db:"stated_balance"`
	IsOpening        bool       `db:"is_opening"`
	UnitIDs          []string   `db:"unit_ids"`
}

var selectColumns = []string{
	"item_id", "warehouse_id", "lot_tag", "occurred_at", "sequence", "received_at",
	"qty", "value::text AS value", "voucher_no", "voucher_type",
	"is_reconciliation", "stated_balance", "is_opening", "unit_ids",
}

// toEvent converts a row into the fixed event record. It is the only place
// loosely-typed database values are inspected.
func (r *entryRow) toEvent(items *ItemCache) (ledger.MovementEvent, error) {
	value, err := types.NewMoneyFromString(r.Value)
	if err != nil {
		return ledger.MovementEvent{}, fmt.Errorf("voucher %s: parse value %q: %w", r.VoucherNo, r.Value, err)
	}

	ev := ledger.MovementEvent{
		ItemID:           r.ItemID,
		WarehouseID:      r.WarehouseID,
		OccurredAt:       r.OccurredAt,
		Sequence:         r.Sequence,
		ReceivedAt:       r.ReceivedAt,
		SignedQty:        types.Quantity(r.Qty),
		ValueDelta:       value,
		VoucherID:        r.VoucherNo,
		VoucherType:      r.VoucherType,
		IsReconciliation: r.IsReconciliation,
		IsOpening:        r.IsOpening,
		HasDiscreteUnits: items.HasSerialNo(r.ItemID),
		UnitIDs:          r.UnitIDs,
	}
	if r.LotTag != nil {
		ev.LotTag = *r.LotTag
	}
	if r.StatedBalance != nil {
		stated := types.Quantity(*r.StatedBalance)
		ev.StatedBalanceAfter = &stated
	}
	return ev, nil
}

// EventRepo implements ledger.EventSource over stock_ledger_entries.
type EventRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ ledger.EventSource = (*EventRepo)(nil)

// NewEventRepo creates a new event repository.
func NewEventRepo(txm *postgres.TxManager) *EventRepo {
	return &EventRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// buildQuery selects non-cancelled entries matching filter in ledger order.
func (r *EventRepo) buildQuery(filter ledger.Filter) (string, []any, error) {
	q := r.builder.Select(selectColumns...).
		From(entriesTable).
		Where(squirrel.Eq{"is_cancelled": false}).
		OrderBy("occurred_at", "sequence")

	if len(filter.ItemIDs) > 0 {
		q = q.Where(squirrel.Eq{"item_id": filter.ItemIDs})
	}
	if len(filter.WarehouseIDs) > 0 {
		q = q.Where(squirrel.Eq{"warehouse_id": filter.WarehouseIDs})
	}
	if !filter.FromDate.IsZero() {
		q = q.Where(squirrel.GtOrEq{"occurred_at": types.Day(filter.FromDate)})
	}
	if !filter.ToDate.IsZero() {
		q = q.Where(squirrel.Lt{"occurred_at": types.Day(filter.ToDate).AddDate(0, 0, 1)})
	}
	return q.ToSql()
}

// Stream implements ledger.EventSource. Callers that need a stable
// snapshot across several queries run it inside TxManager.ReadOnly.
func (r *EventRepo) Stream(ctx context.Context, filter ledger.Filter, fn func(ev ledger.MovementEvent) error) error {
	querier := r.txm.GetQuerier(ctx)

	items := NewItemCache()
	if err := items.load(ctx, querier, r.builder, filter.ItemIDs); err != nil {
		return err
	}

	sql, args, err := r.buildQuery(filter)
	if err != nil {
		return fmt.Errorf("build ledger query: %w", err)
	}

	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	scanner := pgxscan.NewRowScanner(rows)
	n := 0
	for rows.Next() {
		var row entryRow
		if err := scanner.Scan(&row); err != nil {
			return fmt.Errorf("scan ledger entry: %w", err)
		}
		ev, err := row.toEvent(items)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ledger: %w", err)
	}

	logger.Debug(ctx, "ledger streamed", "events", n, "serial_items", items.Len())
	return nil
}
