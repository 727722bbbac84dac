// Package sqlite implements the Track C Schema Store over an on-disk
// SQLite database. The migration application helpers (columnExists,
// addColumnIfNotExists) are grounded on the teacher's dolt migration
// runner (internal/storage/dolt/migrations.go), adapted from
// information_schema lookups to SQLite's PRAGMA table_info.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/duotrack/substrate/internal/schema"
	"github.com/duotrack/substrate/internal/types"
)

const bootstrapDDL = `
CREATE TABLE IF NOT EXISTS schema_versions (
	table_name TEXT PRIMARY KEY,
	version    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS schema_applied_migrations (
	table_name TEXT NOT NULL,
	version    INTEGER NOT NULL,
	PRIMARY KEY (table_name, version)
);
`

// Store is a SQLite-backed Track C store. Each registered table becomes
// a real SQLite table named dts_table_<name> with one column per
// declared column plus system columns, so ad-hoc SQL tooling can inspect
// it directly.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	tables map[string]schema.Table
}

func physicalName(table string) string { return "dts_table_" + table }

// Open opens (creating if necessary) a SQLite-backed Schema Store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)", path))
	if err != nil {
		return nil, fmt.Errorf("schema/sqlite.Open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, bootstrapDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema/sqlite.Open: bootstrap: %w", err)
	}
	return &Store{db: db, tables: make(map[string]schema.Table)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RegisterTable implements schema.Store.
func (s *Store) RegisterTable(ctx context.Context, table schema.Table) error {
	if err := table.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tables[table.Name]; ok {
		if !sameShape(existing, table) {
			return types.Wrap("schema/sqlite.RegisterTable", types.ErrSchemaConflict, nil)
		}
		return nil
	}

	var cols []string
	for _, c := range table.Columns {
		if c.Name == table.PrimaryKey {
			continue // already declared as the TEXT PRIMARY KEY column
		}
		cols = append(cols, fmt.Sprintf("%q TEXT", c.Name))
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		%s TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		causal_parent TEXT NOT NULL DEFAULT '',
		%s
	)`, physicalName(table.Name), table.PrimaryKey, strings.Join(cols, ",\n\t\t"))

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("schema/sqlite.RegisterTable: %w", err)
	}
	s.tables[table.Name] = table
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

func (s *Store) tableDef(name string) (schema.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	return t, ok
}

// Upsert implements schema.Store.
func (s *Store) Upsert(ctx context.Context, tableName string, row types.Row) (string, error) {
	table, ok := s.tableDef(tableName)
	if !ok {
		return "", types.Wrap("schema/sqlite.Upsert", types.ErrNotFound, nil)
	}
	pkVal, ok := row.PrimaryKeyValue()
	if !ok {
		return "", fmt.Errorf("schema/sqlite.Upsert: row missing value for primary key %q", table.PrimaryKey)
	}

	cols := []string{table.PrimaryKey, "created_at", "causal_parent"}
	placeholders := []string{"?", "?", "?"}
	args := []any{pkVal, row.CreatedAt.UnixNano(), string(row.CausalParent)}
	for _, c := range table.Columns {
		if c.Name == table.PrimaryKey {
			continue
		}
		v, err := encodeScalar(row.Values[c.Name])
		if err != nil {
			return "", fmt.Errorf("schema/sqlite.Upsert: column %q: %w", c.Name, err)
		}
		cols = append(cols, c.Name)
		placeholders = append(placeholders, "?")
		args = append(args, v)
	}

	var setClauses []string
	for _, c := range cols[1:] {
		setClauses = append(setClauses, fmt.Sprintf("%q = excluded.%q", c, c))
	}

	query := fmt.Sprintf(`
		INSERT INTO %q (%s) VALUES (%s)
		ON CONFLICT(%q) DO UPDATE SET %s
	`, physicalName(tableName), quoteAll(cols), strings.Join(placeholders, ", "), table.PrimaryKey, strings.Join(setClauses, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("schema/sqlite.Upsert: %w", err)
	}
	return pkVal, nil
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return strings.Join(quoted, ", ")
}

func encodeScalar(v types.Scalar) (string, error) {
	if v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Get implements schema.Store.
func (s *Store) Get(ctx context.Context, tableName string, primaryKeyValue string) (*types.Row, error) {
	table, ok := s.tableDef(tableName)
	if !ok {
		return nil, types.Wrap("schema/sqlite.Get", types.ErrNotFound, nil)
	}

	cols := []string{"created_at", "causal_parent"}
	for _, c := range table.Columns {
		if c.Name != table.PrimaryKey {
			cols = append(cols, c.Name)
		}
	}
	query := fmt.Sprintf(`SELECT %s FROM %q WHERE %q = ?`, quoteAll(cols), physicalName(tableName), table.PrimaryKey)

	dest := make([]any, len(cols))
	scanned := make([]sql.NullString, len(cols))
	for i := range scanned {
		dest[i] = &scanned[i]
	}
	if err := s.db.QueryRowContext(ctx, query, primaryKeyValue).Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, types.Wrap("schema/sqlite.Get", types.ErrNotFound, nil)
		}
		return nil, fmt.Errorf("schema/sqlite.Get: %w", err)
	}

	r := &types.Row{Table: tableName, PrimaryKey: table.PrimaryKey, Values: map[string]types.Scalar{table.PrimaryKey: primaryKeyValue}}
	for i, c := range cols {
		if c == "created_at" {
			nanos, _ := strconv.ParseInt(scanned[i].String, 10, 64)
			r.CreatedAt = time.Unix(0, nanos).UTC()
			continue
		}
		if c == "causal_parent" {
			r.CausalParent = types.ID(scanned[i].String)
			continue
		}
		r.Values[c] = decodeScalar(scanned[i])
	}
	return r, nil
}

func decodeScalar(ns sql.NullString) types.Scalar {
	if !ns.Valid {
		return nil
	}
	return ns.String
}

// Query implements schema.Store.
func (s *Store) Query(ctx context.Context, tableName string, predicate func(types.Row) bool) iter.Seq2[*types.Row, error] {
	return func(yield func(*types.Row, error) bool) {
		table, ok := s.tableDef(tableName)
		if !ok {
			yield(nil, types.Wrap("schema/sqlite.Query", types.ErrNotFound, nil))
			return
		}

		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %q FROM %q`, table.PrimaryKey, physicalName(tableName)))
		if err != nil {
			yield(nil, fmt.Errorf("schema/sqlite.Query: %w", err))
			return
		}
		var pks []string
		for rows.Next() {
			var pk string
			if err := rows.Scan(&pk); err != nil {
				rows.Close()
				yield(nil, err)
				return
			}
			pks = append(pks, pk)
		}
		rows.Close()

		for _, pk := range pks {
			r, err := s.Get(ctx, tableName, pk)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
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

	applied, err := s.migrationApplied(ctx, m.Table, m.Version)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	current, err := s.SchemaVersion(ctx, m.Table)
	if err != nil {
		return err
	}
	if current != 0 && m.Version <= current {
		return fmt.Errorf("schema/sqlite.ApplyMigration: table %q: version %d is not newer than applied version %d",
			m.Table, m.Version, current)
	}

	phys := physicalName(m.Table)
	for _, c := range m.Changes {
		switch c.Kind {
		case schema.ChangeAddColumn:
			exists, err := s.columnExists(ctx, phys, c.Column.Name)
			if err != nil {
				return err
			}
			if !exists {
				if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %q TEXT`, phys, c.Column.Name)); err != nil {
					return fmt.Errorf("schema/sqlite.ApplyMigration: add column %q: %w", c.Column.Name, err)
				}
			}
		case schema.ChangeDropColumn:
			exists, err := s.columnExists(ctx, phys, c.Column.Name)
			if err != nil {
				return err
			}
			if exists {
				if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %q DROP COLUMN %q`, phys, c.Column.Name)); err != nil {
					return fmt.Errorf("schema/sqlite.ApplyMigration: drop column %q: %w", c.Column.Name, err)
				}
			}
		case schema.ChangeRenameColumn:
			exists, err := s.columnExists(ctx, phys, c.FromName)
			if err != nil {
				return err
			}
			if exists {
				if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %q RENAME COLUMN %q TO %q`, phys, c.FromName, c.Column.Name)); err != nil {
					return fmt.Errorf("schema/sqlite.ApplyMigration: rename column: %w", err)
				}
			}
		case schema.ChangeAddIndex:
			idxCols := quoteAll(c.IndexCols)
			if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (%s)`, c.IndexName, phys, idxCols)); err != nil {
				return fmt.Errorf("schema/sqlite.ApplyMigration: add index: %w", err)
			}
		}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_applied_migrations(table_name, version) VALUES (?, ?)
		ON CONFLICT(table_name, version) DO NOTHING
	`, m.Table, m.Version); err != nil {
		return fmt.Errorf("schema/sqlite.ApplyMigration: record version: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_versions(table_name, version) VALUES (?, ?)
		ON CONFLICT(table_name) DO UPDATE SET version = MAX(version, excluded.version)
	`, m.Table, m.Version); err != nil {
		return fmt.Errorf("schema/sqlite.ApplyMigration: bump version: %w", err)
	}
	return nil
}

func (s *Store) migrationApplied(ctx context.Context, table string, version int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM schema_applied_migrations WHERE table_name = ? AND version = ?)
	`, table, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("schema/sqlite.migrationApplied: %w", err)
	}
	return exists, nil
}

// columnExists mirrors the teacher's addColumnIfNotExists guard, adapted
// to SQLite's PRAGMA table_info in place of information_schema.
func (s *Store) columnExists(ctx context.Context, physicalTable, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, physicalTable))
	if err != nil {
		return false, fmt.Errorf("schema/sqlite.columnExists: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SchemaVersion implements schema.Store.
func (s *Store) SchemaVersion(ctx context.Context, tableName string) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_versions WHERE table_name = ?`, tableName).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema/sqlite.SchemaVersion: %w", err)
	}
	return version, nil
}
