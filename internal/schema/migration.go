package schema

import (
	"context"
	"fmt"

	"github.com/duotrack/substrate/internal/types"
)

// ChangeKind enumerates the monotone migration operations a Migration
// may declare.
type ChangeKind string

const (
	ChangeAddColumn    ChangeKind = "add_column"
	ChangeDropColumn   ChangeKind = "drop_column"
	ChangeRenameColumn ChangeKind = "rename_column"
	ChangeAddIndex     ChangeKind = "add_index"
)

// Change is a single monotone step within a Migration. A rename is
// expressed as the caller running two migrations (add+copy, then drop)
// rather than as an atomic rename, per spec.md §3 invariant 2 — but
// ChangeRenameColumn is still modeled here for backends capable of a
// native atomic rename (e.g. SQLite's ALTER TABLE ... RENAME COLUMN);
// a backend unable to do so may reject it and require the two-step form.
type Change struct {
	Kind      ChangeKind
	Column    types.Column // for AddColumn, RenameColumn (new definition)
	FromName  string       // for RenameColumn
	IndexName string       // for AddIndex
	IndexCols []string     // for AddIndex
}

// Migration is a single ordinal, named set of monotone changes applied
// to a table. Versions for a given table must be applied in increasing
// order; a backend that has already recorded version V for a table
// treats ApplyMigration(V) as a no-op.
type Migration struct {
	Table   string
	Version int
	Name    string
	Changes []Change
}

// Validate checks the migration declares at least one change and that
// every AddColumn change is monotone: the new column must be nullable
// or carry a non-nil default, so existing rows remain valid without a
// backfill pass.
func (m Migration) Validate() error {
	if m.Table == "" {
		return fmt.Errorf("schema: migration %q has empty table", m.Name)
	}
	if m.Version <= 0 {
		return fmt.Errorf("schema: migration %q has non-positive version %d", m.Name, m.Version)
	}
	if len(m.Changes) == 0 {
		return fmt.Errorf("schema: migration %q declares no changes", m.Name)
	}
	for _, c := range m.Changes {
		if c.Kind == ChangeAddColumn && !c.Column.Nullable && c.Column.Default == nil {
			return fmt.Errorf("schema: migration %q: added column %q is neither nullable nor defaulted",
				m.Name, c.Column.Name)
		}
	}
	return nil
}

// ApplyOrdered runs every migration in ms against store that has not yet
// been recorded, in ascending version order per table, stopping at the
// first failure. cmd/dtsctl's migrate command uses it to apply a loaded
// manifest. A store whose recorded version for a table
// already exceeds the highest version present in ms is left untouched —
// the refusal to run a downgrade lives in the backend's ApplyMigration,
// not here.
func ApplyOrdered(ctx context.Context, store Store, ms []Migration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	byTable := make(map[string][]Migration)
	for _, m := range ms {
		byTable[m.Table] = append(byTable[m.Table], m)
	}
	for table, tableMigrations := range byTable {
		sortByVersion(tableMigrations)
		for i := 1; i < len(tableMigrations); i++ {
			if tableMigrations[i].Version == tableMigrations[i-1].Version {
				return fmt.Errorf("schema: table %q has duplicate migration version %d", table, tableMigrations[i].Version)
			}
		}
		for _, m := range tableMigrations {
			if err := m.Validate(); err != nil {
				return err
			}
			if err := store.ApplyMigration(ctx, m); err != nil {
				return fmt.Errorf("schema: applying %q v%d to %q: %w", m.Name, m.Version, table, err)
			}
		}
	}
	return nil
}

func sortByVersion(ms []Migration) {
	for i := 1; i < len(ms); i++ {
		for j := i; j > 0 && ms[j].Version < ms[j-1].Version; j-- {
			ms[j], ms[j-1] = ms[j-1], ms[j]
		}
	}
}
