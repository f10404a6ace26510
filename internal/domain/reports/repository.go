package reports

import (
	"context"
	"time"

	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
)

// SnapshotStore persists closing balance snapshots. The report service only
// reads them; cmd/snapshot writes them.
type SnapshotStore interface {
	// LatestBefore returns the newest snapshot dated strictly before date,
	// or nil when there is none.
	LatestBefore(ctx context.Context, date time.Time) (*balance.Baseline, error)

	// Save stores a snapshot, replacing any snapshot with the same date.
	Save(ctx context.Context, snapshot *balance.Baseline) error
}

// EventSource is the ordered movement stream all reports read.
type EventSource = ledger.EventSource
