// Package tx decouples report runs from the database transaction implementation.
package tx

import (
	"context"
)

// Manager runs fn inside a transaction. Nested calls reuse the transaction
// already carried by ctx. The implementation lives in infrastructure/storage/postgres.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds snapshot reads.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction whose queries all see
	// the same snapshot of the ledger.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
