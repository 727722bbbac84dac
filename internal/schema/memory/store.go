// Package memory implements the Track C Schema Store over in-memory
// maps, grounded on the same per-table locking discipline as
// internal/datum/memory.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/duotrack/substrate/internal/schema"
	"github.com/duotrack/substrate/internal/types"
)

type tableState struct {
	mu             sync.RWMutex
	def            schema.Table
	rows           map[string]*types.Row
	schemaVersion  int
	appliedVersion map[int]bool
}

// Store is an in-memory Track C store.
type Store struct {
	mu     sync.Mutex
	tables map[string]*tableState
}

// New returns an empty in-memory Schema Store.
func New() *Store {
	return &Store{tables: make(map[string]*tableState)}
}

func (s *Store) tableState(name string) (*tableState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tables[name]
	return ts, ok
}

// RegisterTable implements schema.Store.
func (s *Store) RegisterTable(ctx context.Context, table schema.Table) error {
	if err := table.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tables[table.Name]
	if ok {
		if !sameShape(existing.def, table) {
			return types.Wrap("memory.RegisterTable", types.ErrSchemaConflict, nil)
		}
		return nil
	}
	s.tables[table.Name] = &tableState{
		def:            table,
		rows:           make(map[string]*types.Row),
		appliedVersion: make(map[int]bool),
	}
	return nil
}

func sameShape(a, b schema.Table) bool {
	if a.PrimaryKey != b.PrimaryKey || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Name != b.Columns[i].Name {
			return false
		}
	}
	return true
}

// Upsert implements schema.Store.
func (s *Store) Upsert(ctx context.Context, tableName string, row types.Row) (string, error) {
	ts, ok := s.tableState(tableName)
	if !ok {
		return "", types.Wrap("memory.Upsert", types.ErrNotFound, nil)
	}
	pkVal, ok := row.PrimaryKeyValue()
	if !ok {
		return "", fmt.Errorf("memory.Upsert: row missing value for primary key %q", ts.def.PrimaryKey)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	r := row
	r.Table = tableName
	if r.CreatedAt.IsZero() {
		if existing, ok := ts.rows[pkVal]; ok {
			r.CreatedAt = existing.CreatedAt
		} else {
			r.CreatedAt = time.Now().UTC()
		}
	}
	r.Values = cloneValues(row.Values)
	ts.rows[pkVal] = &r
	return pkVal, nil
}

func cloneValues(v map[string]types.Scalar) map[string]types.Scalar {
	out := make(map[string]types.Scalar, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Get implements schema.Store.
func (s *Store) Get(ctx context.Context, tableName string, primaryKeyValue string) (*types.Row, error) {
	ts, ok := s.tableState(tableName)
	if !ok {
		return nil, types.Wrap("memory.Get", types.ErrNotFound, nil)
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	r, ok := ts.rows[primaryKeyValue]
	if !ok {
		return nil, types.Wrap("memory.Get", types.ErrNotFound, nil)
	}
	cp := *r
	cp.Values = cloneValues(r.Values)
	return &cp, nil
}

// Query implements schema.Store.
func (s *Store) Query(ctx context.Context, tableName string, predicate func(types.Row) bool) iter.Seq2[*types.Row, error] {
	return func(yield func(*types.Row, error) bool) {
		ts, ok := s.tableState(tableName)
		if !ok {
			yield(nil, types.Wrap("memory.Query", types.ErrNotFound, nil))
			return
		}
		ts.mu.RLock()
		keys := make([]string, 0, len(ts.rows))
		for k := range ts.rows {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([]*types.Row, 0, len(ts.rows))
		for _, k := range keys {
			r := ts.rows[k]
			cp := *r
			cp.Values = cloneValues(r.Values)
			rows = append(rows, &cp)
		}
		ts.mu.RUnlock()

		for _, r := range rows {
			if predicate != nil && !predicate(*r) {
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// ApplyMigration implements schema.Store.
func (s *Store) ApplyMigration(ctx context.Context, m schema.Migration) error {
	if err := m.Validate(); err != nil {
		return err
	}
	ts, ok := s.tableState(m.Table)
	if !ok {
		return fmt.Errorf("memory.ApplyMigration: table %q not registered", m.Table)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.appliedVersion[m.Version] {
		return nil // already applied; idempotent per spec.md §3 invariant 3
	}
	if m.Version <= ts.schemaVersion && ts.schemaVersion != 0 {
		return fmt.Errorf("memory.ApplyMigration: table %q: migration version %d is not newer than applied version %d",
			m.Table, m.Version, ts.schemaVersion)
	}

	for _, c := range m.Changes {
		if err := applyChange(ts, c); err != nil {
			return err
		}
	}

	ts.appliedVersion[m.Version] = true
	if m.Version > ts.schemaVersion {
		ts.schemaVersion = m.Version
	}
	return nil
}

func applyChange(ts *tableState, c schema.Change) error {
	switch c.Kind {
	case schema.ChangeAddColumn:
		if _, exists := ts.def.Column(c.Column.Name); !exists {
			ts.def.Columns = append(ts.def.Columns, c.Column)
			for _, r := range ts.rows {
				if _, set := r.Values[c.Column.Name]; !set {
					r.Values[c.Column.Name] = c.Column.Default
				}
			}
		}
	case schema.ChangeDropColumn:
		for i, col := range ts.def.Columns {
			if col.Name == c.Column.Name {
				ts.def.Columns = append(ts.def.Columns[:i], ts.def.Columns[i+1:]...)
				break
			}
		}
		for _, r := range ts.rows {
			delete(r.Values, c.Column.Name)
		}
	case schema.ChangeRenameColumn:
		return fmt.Errorf("memory.ApplyMigration: rename_column is not atomic on this backend; express as add+copy+drop")
	case schema.ChangeAddIndex:
		// in-memory backend has no physical indexes; accepted as a no-op
		// so migration manifests are portable across backends.
	}
	return nil
}

// SchemaVersion implements schema.Store.
func (s *Store) SchemaVersion(ctx context.Context, tableName string) (int, error) {
	ts, ok := s.tableState(tableName)
	if !ok {
		return 0, types.Wrap("memory.SchemaVersion", types.ErrNotFound, nil)
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.schemaVersion, nil
}
