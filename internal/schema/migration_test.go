package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duotrack/substrate/internal/schema"
	"github.com/duotrack/substrate/internal/schema/memory"
	"github.com/duotrack/substrate/internal/types"
)

func agentsTable() schema.Table {
	return schema.Table{
		Name:       "agents",
		PrimaryKey: "id",
		Columns: []types.Column{
			{Name: "id"},
			{Name: "name"},
		},
	}
}

func TestApplyMigrationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.RegisterTable(ctx, agentsTable()))

	m := schema.Migration{
		Table:   "agents",
		Version: 1,
		Name:    "add_display_name",
		Changes: []schema.Change{
			{Kind: schema.ChangeAddColumn, Column: types.Column{Name: "display_name", Nullable: true}},
		},
	}
	require.NoError(t, s.ApplyMigration(ctx, m))
	require.NoError(t, s.ApplyMigration(ctx, m)) // applying twice is a no-op

	v, err := s.SchemaVersion(ctx, "agents")
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestMigrationValidateRejectsNonMonotoneAddColumn(t *testing.T) {
	m := schema.Migration{
		Table:   "agents",
		Version: 1,
		Name:    "bad",
		Changes: []schema.Change{
			{Kind: schema.ChangeAddColumn, Column: types.Column{Name: "required_field"}},
		},
	}
	require.Error(t, m.Validate())
}

func TestApplyOrderedRunsAscendingPerTable(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.RegisterTable(ctx, agentsTable()))

	ms := []schema.Migration{
		{Table: "agents", Version: 2, Name: "second", Changes: []schema.Change{
			{Kind: schema.ChangeAddColumn, Column: types.Column{Name: "b", Nullable: true}},
		}},
		{Table: "agents", Version: 1, Name: "first", Changes: []schema.Change{
			{Kind: schema.ChangeAddColumn, Column: types.Column{Name: "a", Nullable: true}},
		}},
	}
	require.NoError(t, schema.ApplyOrdered(ctx, s, ms))

	v, err := s.SchemaVersion(ctx, "agents")
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestRegisterTableConflictingShapeFails(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.RegisterTable(ctx, agentsTable()))

	conflicting := agentsTable()
	conflicting.PrimaryKey = "name"
	err := s.RegisterTable(ctx, conflicting)
	require.True(t, types.IsSchemaConflict(err))
}

func TestUpsertReplacesPriorColumnValues(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.RegisterTable(ctx, agentsTable()))

	_, err := s.Upsert(ctx, "agents", types.Row{
		PrimaryKey: "id",
		Values:     map[string]types.Scalar{"id": "a1", "name": "Ada"},
	})
	require.NoError(t, err)

	_, err = s.Upsert(ctx, "agents", types.Row{
		PrimaryKey: "id",
		Values:     map[string]types.Scalar{"id": "a1", "name": "Ada Lovelace"},
	})
	require.NoError(t, err)

	row, err := s.Get(ctx, "agents", "a1")
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", row.Values["name"])
}
