package schema

import (
	"context"
	"iter"

	"github.com/duotrack/substrate/internal/types"
)

// Store is the Track C contract (spec.md §4.C).
type Store interface {
	// RegisterTable declares a table's shape. Re-registering the same name
	// with an identical shape is a no-op; registering a different shape
	// under an existing name fails with types.ErrSchemaConflict.
	RegisterTable(ctx context.Context, table Table) error

	// Upsert writes row, keyed by its primary key value, replacing prior
	// column values on conflict. Returns the primary key value.
	Upsert(ctx context.Context, tableName string, row types.Row) (string, error)

	// Get returns the row with the given primary key value, or
	// types.ErrNotFound.
	Get(ctx context.Context, tableName string, primaryKeyValue string) (*types.Row, error)

	// Query returns rows of tableName matching predicate, in an
	// unspecified but stable order.
	Query(ctx context.Context, tableName string, predicate func(types.Row) bool) iter.Seq2[*types.Row, error]

	// ApplyMigration applies m if its version has not already been
	// recorded for m.Table; applying the same migration twice is a no-op
	// (spec.md §3 invariant 3).
	ApplyMigration(ctx context.Context, m Migration) error

	// SchemaVersion returns the highest migration version applied to
	// tableName, or 0 if none have been applied.
	SchemaVersion(ctx context.Context, tableName string) (int, error)
}
