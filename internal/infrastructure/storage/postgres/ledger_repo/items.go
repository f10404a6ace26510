package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/infrastructure/storage/postgres"
)

const itemsTable = "items"

// itemFlags are the per-item attributes the event boundary needs.
type itemFlags struct {
	ID          string `db:"id"`
	HasSerialNo bool   `db:"has_serial_no"`
}

// ItemCache memoises item attributes for a single Stream call.
// It is created per run and never shared, so concurrent runs cannot interfere.
type ItemCache struct {
	serial map[string]bool
}

// NewItemCache returns an empty cache.
func NewItemCache() *ItemCache {
	return &ItemCache{serial: make(map[string]bool)}
}

// Set records an item's serial tracking flag.
func (c *ItemCache) Set(itemID string, hasSerialNo bool) {
	c.serial[itemID] = hasSerialNo
}

// HasSerialNo reports whether the item is tracked by unit. Unknown items are not.
func (c *ItemCache) HasSerialNo(itemID string) bool {
	return c.serial[itemID]
}

// Len returns the number of cached items.
func (c *ItemCache) Len() int { return len(c.serial) }

// load fills the cache before any rows are streamed, since the connection
// is busy while a result set is open.
func (c *ItemCache) load(ctx context.Context, q postgres.Querier, builder squirrel.StatementBuilderType, itemIDs []string) error {
	sb := builder.Select(postgres.Columns[itemFlags]()...).From(itemsTable)
	if len(itemIDs) > 0 {
		sb = sb.Where(squirrel.Eq{"id": itemIDs})
	} else {
		sb = sb.Where(squirrel.Eq{"has_serial_no": true})
	}

	sql, args, err := sb.ToSql()
	if err != nil {
		return fmt.Errorf("build item query: %w", err)
	}

	var rows []itemFlags
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	for _, r := range rows {
		c.Set(r.ID, r.HasSerialNo)
	}
	return nil
}
