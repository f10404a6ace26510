// Package snapshot_repo stores closing balance snapshots that report runs
// reuse as opening baselines.
package snapshot_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

const snapshotsTable = "stock_closing_snapshots"

// DefaultCompressThreshold is the payload size above which snapshots are compressed.
const DefaultCompressThreshold = 10 * 1024

type snapshotRow struct {
	ID          id.ID     `db:"id"`
	AsOf        time.Time `db:"as_of"`
	Entries     int       `db:"entries"`
	Compression string    `db:"compression_algo"`
	Payload     []byte    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
}

// SnapshotRepo implements reports.SnapshotStore.
type SnapshotRepo struct {
	txm     *postgres.TxManager
	codec   *Codec
	builder squirrel.StatementBuilderType
}

var _ reports.SnapshotStore = (*SnapshotRepo)(nil)

// NewSnapshotRepo creates a new snapshot repository.
func NewSnapshotRepo(txm *postgres.TxManager, codec *Codec) *SnapshotRepo {
	return &SnapshotRepo{
		txm:     txm,
		codec:   codec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// LatestBefore returns the newest snapshot dated strictly before date.
func (r *SnapshotRepo) LatestBefore(ctx context.Context, date time.Time) (*balance.Baseline, error) {
	sql, args, err := r.builder.Select(postgres.Columns[snapshotRow]()...).
		From(snapshotsTable).
		Where(squirrel.Lt{"as_of": types.Day(date)}).
		OrderBy("as_of DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row snapshotRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	entries, err := r.codec.Decode(row.Payload, row.Compression)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", row.ID, err)
	}
	return &balance.Baseline{AsOf: row.AsOf, Entries: entries}, nil
}

// Save stores snapshot, replacing an existing snapshot with the same date.
func (r *SnapshotRepo) Save(ctx context.Context, snapshot *balance.Baseline) error {
	payload, compression, err := r.codec.Encode(snapshot.Entries)
	if err != nil {
		return err
	}

	row := snapshotRow{
		ID:          id.New(),
		AsOf:        types.Day(snapshot.AsOf),
		Entries:     len(snapshot.Entries),
		Compression: compression,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}

	sql, args, err := r.builder.Insert(snapshotsTable).
		SetMap(postgres.ToMap(row)).
		Suffix("ON CONFLICT (as_of) DO UPDATE SET id = EXCLUDED.id, entries = EXCLUDED.entries, " +
			"compression_algo = EXCLUDED.compression_algo, payload = EXCLUDED.payload, created_at = EXCLUDED.created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		logger.Info(ctx, "closing snapshot saved",
			"as_of", row.AsOf.Format(time.DateOnly),
			"entries", row.Entries,
			"bytes", len(payload),
			"compression", compression)
		return nil
	})
}
