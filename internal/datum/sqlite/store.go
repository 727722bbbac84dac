// Package sqlite implements the Track A Datum Store over an on-disk
// SQLite database via the pure-Go ncruces/go-sqlite3 driver. It realizes
// the "on-disk append log" / "indexed key-value store" tiers of the
// projection lattice: durable across process restarts, indexed by id and
// by (namespace, ordinal) for restartable listing.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/duotrack/substrate/internal/idgen"
	"github.com/duotrack/substrate/internal/types"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS datums (
	id            TEXT PRIMARY KEY,
	namespace     TEXT NOT NULL,
	content       BLOB NOT NULL,
	created_at    INTEGER NOT NULL,
	causal_parent TEXT NOT NULL DEFAULT '',
	ordinal       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_datums_namespace_ordinal ON datums (namespace, ordinal);

CREATE TABLE IF NOT EXISTS datum_metadata (
	datum_id TEXT NOT NULL REFERENCES datums(id),
	key      TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (datum_id, key)
);

CREATE TABLE IF NOT EXISTS namespace_counters (
	namespace TEXT PRIMARY KEY,
	next      INTEGER NOT NULL DEFAULT 1
);
`

// Store is a SQLite-backed Datum Store. Writes are serialized per
// namespace with an in-process mutex, matching spec.md §5's "serialized
// writers per namespace" even though SQLite itself serializes at the file
// level — the per-namespace lock avoids holding up writers to unrelated
// namespaces behind SQLite's single-writer lock for longer than necessary.
type Store struct {
	db *sql.DB

	nsLocksMu sync.Mutex
	nsLocks   map[string]*sync.Mutex
}

// Open opens (creating if necessary) a SQLite-backed Datum Store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=journal_mode(wal)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer connection; SQLite serializes writes anyway
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: create schema: %w", err)
	}
	return &Store{db: db, nsLocks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) lockFor(ns string) *sync.Mutex {
	s.nsLocksMu.Lock()
	defer s.nsLocksMu.Unlock()
	l, ok := s.nsLocks[ns]
	if !ok {
		l = &sync.Mutex{}
		s.nsLocks[ns] = l
	}
	return l
}

// Put implements datum.Store.
func (s *Store) Put(ctx context.Context, namespace string, content []byte, causalParent types.ID, metadata types.Metadata) (types.ID, error) {
	id := types.ID(idgen.DatumID(namespace, content))

	lock := s.lockFor(namespace)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite.Put: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM datums WHERE id = ?)`, id).Scan(&exists); err != nil {
		return "", fmt.Errorf("sqlite.Put: lookup: %w", err)
	}
	if exists {
		if err := mergeMetadata(ctx, tx, id, metadata); err != nil {
			return "", err
		}
		return id, tx.Commit()
	}

	if causalParent != "" {
		var parentExists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM datums WHERE id = ?)`, causalParent).Scan(&parentExists); err != nil {
			return "", fmt.Errorf("sqlite.Put: lookup parent: %w", err)
		}
		if !parentExists {
			return "", types.Wrap("sqlite.Put", types.ErrCausalMissing, nil)
		}
	}

	var next int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO namespace_counters(namespace, next) VALUES (?, 2)
		ON CONFLICT(namespace) DO UPDATE SET next = next + 1
		RETURNING next - 1
	`, namespace).Scan(&next); err != nil {
		return "", fmt.Errorf("sqlite.Put: next ordinal: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO datums(id, namespace, content, created_at, causal_parent, ordinal)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, namespace, content, now.UnixNano(), string(causalParent), next); err != nil {
		return "", fmt.Errorf("sqlite.Put: insert: %w", err)
	}

	if err := insertMetadata(ctx, tx, id, metadata); err != nil {
		return "", err
	}

	return id, tx.Commit()
}

func insertMetadata(ctx context.Context, tx *sql.Tx, id types.ID, metadata types.Metadata) error {
	for k, v := range metadata {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO datum_metadata(datum_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(datum_id, key) DO NOTHING
		`, id, k, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("sqlite.Put: metadata: %w", err)
		}
	}
	return nil
}

// mergeMetadata applies the "existing values win on conflict" rule using
// INSERT ... ON CONFLICT DO NOTHING so a second write's keys only fill
// gaps.
func mergeMetadata(ctx context.Context, tx *sql.Tx, id types.ID, metadata types.Metadata) error {
	return insertMetadata(ctx, tx, id, metadata)
}

// UpdateMetadata implements datum.Store.
func (s *Store) UpdateMetadata(ctx context.Context, id types.ID, metadata types.Metadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.UpdateMetadata: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM datums WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("sqlite.UpdateMetadata: lookup: %w", err)
	}
	if !exists {
		return types.Wrap("sqlite.UpdateMetadata", types.ErrNotFound, nil)
	}

	for k, v := range metadata {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO datum_metadata(datum_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(datum_id, key) DO UPDATE SET value = excluded.value
		`, id, k, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("sqlite.UpdateMetadata: %w", err)
		}
	}
	return tx.Commit()
}

// Get implements datum.Store.
func (s *Store) Get(ctx context.Context, id types.ID) (*types.Datum, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT namespace, content, created_at, causal_parent FROM datums WHERE id = ?
	`, id)

	var d types.Datum
	var createdAtNanos int64
	var causalParent string
	if err := row.Scan(&d.Namespace, &d.Content, &createdAtNanos, &causalParent); err != nil {
		if err == sql.ErrNoRows {
			return nil, types.Wrap("sqlite.Get", types.ErrNotFound, nil)
		}
		return nil, fmt.Errorf("sqlite.Get: %w", err)
	}
	d.ID = id
	d.CreatedAt = time.Unix(0, createdAtNanos).UTC()
	d.CausalParent = types.ID(causalParent)

	meta, err := s.loadMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Metadata = meta
	return &d, nil
}

func (s *Store) loadMetadata(ctx context.Context, id types.ID) (types.Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM datum_metadata WHERE datum_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite.loadMetadata: %w", err)
	}
	defer rows.Close()

	meta := types.Metadata{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("sqlite.loadMetadata: scan: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// List implements datum.Store.
func (s *Store) List(ctx context.Context, namespace string, since, until int64) iter.Seq2[*types.Datum, error] {
	return func(yield func(*types.Datum, error) bool) {
		query := `SELECT id FROM datums WHERE namespace = ? AND ordinal > ?`
		args := []any{namespace, since}
		if until > 0 {
			query += ` AND ordinal <= ?`
			args = append(args, until)
		}
		query += ` ORDER BY ordinal ASC`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("sqlite.List: %w", err))
			return
		}
		defer rows.Close()

		var ids []types.ID
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				yield(nil, fmt.Errorf("sqlite.List: scan: %w", err))
				return
			}
			ids = append(ids, types.ID(id))
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
			return
		}

		for _, id := range ids {
			d, err := s.Get(ctx, id)
			if !yield(d, err) {
				return
			}
		}
	}
}

// Parents implements datum.Store.
func (s *Store) Parents(ctx context.Context, id types.ID) ([]types.ID, error) {
	var chain []types.ID
	cur := id
	seen := make(map[types.ID]bool)
	for cur != "" {
		if seen[cur] {
			return nil, types.Wrap("sqlite.Parents", types.ErrIntegrityViolation, nil)
		}
		seen[cur] = true
		d, err := s.Get(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cur)
		cur = d.CausalParent
	}
	return chain, nil
}
