// Package doltlog implements the Track A Datum Store over a Dolt SQL
// server reached via the pure-Go go-sql-driver/mysql client. It realizes
// the "replicated log" tier of the projection lattice: the same MySQL
// wire protocol lets the underlying engine be swapped for any replicated,
// multi-writer SQL backend without changing this package.
//
// Retry, tracing and metrics are grounded on the teacher's dolt storage
// backend (internal/storage/dolt/store.go): transient connection errors
// are retried with bounded exponential backoff, and every round trip is
// wrapped in an OTel span and feeds a shared set of package-level
// instruments that forward through the delegating provider until
// telemetry.Init is called.
package doltlog

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/duotrack/substrate/internal/idgen"
	"github.com/duotrack/substrate/internal/types"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS datums (
	id            VARCHAR(64) PRIMARY KEY,
	namespace_    VARCHAR(255) NOT NULL,
	content       LONGBLOB NOT NULL,
	created_at    BIGINT NOT NULL,
	causal_parent VARCHAR(64) NOT NULL DEFAULT '',
	ordinal_      BIGINT NOT NULL,
	INDEX idx_datums_namespace_ordinal (namespace_, ordinal_)
);

CREATE TABLE IF NOT EXISTS datum_metadata (
	datum_id VARCHAR(64) NOT NULL,
	meta_key VARCHAR(255) NOT NULL,
	meta_val TEXT NOT NULL,
	PRIMARY KEY (datum_id, meta_key)
);

CREATE TABLE IF NOT EXISTS namespace_counters (
	namespace_ VARCHAR(255) PRIMARY KEY,
	next_      BIGINT NOT NULL DEFAULT 1
);
`

// Config describes how to reach the Dolt SQL server.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (c Config) dsn() string {
	db := c.Database
	if db == "" {
		db = "substrate"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		c.User, c.Password, c.Host, c.Port, db)
}

// Store is a Dolt-backed Datum Store reached over the MySQL wire
// protocol. All writes to a given namespace are serialized in-process;
// the server itself serializes at the table level.
type Store struct {
	db *sql.DB

	nsLocksMu sync.Mutex
	nsLocks   map[string]*sync.Mutex
}

const retryMaxElapsed = 30 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRetryableError reports whether err is a transient connection error
// worth retrying against a Dolt SQL server.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "driver: bad connection"),
		strings.Contains(errStr, "invalid connection"),
		strings.Contains(errStr, "broken pipe"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "database is read only"),
		strings.Contains(errStr, "lost connection"),
		strings.Contains(errStr, "gone away"),
		strings.Contains(errStr, "i/o timeout"),
		strings.Contains(errStr, "unknown database"):
		return true
	}
	return false
}

var tracer = otel.Tracer("github.com/duotrack/substrate/datum/doltlog")

var metrics struct {
	retryCount metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/duotrack/substrate/datum/doltlog")
	metrics.retryCount, _ = m.Int64Counter("dts.doltlog.retry_count",
		metric.WithDescription("SQL operations retried due to transient errors"),
		metric.WithUnit("{retry}"),
	)
}

// withRetry executes op, retrying transient errors with bounded backoff.
func withRetry(ctx context.Context, op func() error) error {
	attempts := 0
	bo := newRetryBackoff()
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if attempts > 1 {
		metrics.retryCount.Add(ctx, int64(attempts-1))
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Open connects to a running Dolt SQL server and ensures the schema
// exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("doltlog.Open: %w", err)
	}
	db.SetMaxOpenConns(8)

	if err := withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("doltlog.Open: ping: %w", err)
	}

	for _, stmt := range strings.Split(schemaDDL, ";\n\nCREATE") {
		s := stmt
		if !strings.HasPrefix(strings.TrimSpace(s), "CREATE") {
			s = "CREATE" + s
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if err := withRetry(ctx, func() error {
			_, execErr := db.ExecContext(ctx, s)
			return execErr
		}); err != nil {
			db.Close()
			return nil, fmt.Errorf("doltlog.Open: schema: %w", err)
		}
	}

	return &Store{db: db, nsLocks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the underlying connection pool.
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

	ctx, span := tracer.Start(ctx, "doltlog.put", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("dts.namespace", namespace)))
	defer func() { endSpan(span, nil) }()

	lock := s.lockFor(namespace)
	lock.Lock()
	defer lock.Unlock()

	var retErr error
	err := withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM datums WHERE id = ?)`, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			if err := mergeMetadata(ctx, tx, id, metadata); err != nil {
				retErr = err
				return backoff.Permanent(err)
			}
			return tx.Commit()
		}

		if causalParent != "" {
			var parentExists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM datums WHERE id = ?)`, causalParent).Scan(&parentExists); err != nil {
				return err
			}
			if !parentExists {
				retErr = types.Wrap("doltlog.Put", types.ErrCausalMissing, nil)
				return backoff.Permanent(retErr)
			}
		}

		var next int64
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO namespace_counters(namespace_, next_) VALUES (?, 2)
			ON DUPLICATE KEY UPDATE next_ = next_ + 1
		`, namespace); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT next_ - 1 FROM namespace_counters WHERE namespace_ = ?`, namespace).Scan(&next); err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO datums(id, namespace_, content, created_at, causal_parent, ordinal_)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, namespace, content, now.UnixNano(), string(causalParent), next); err != nil {
			return err
		}

		if err := insertMetadata(ctx, tx, id, metadata); err != nil {
			return err
		}

		return tx.Commit()
	})
	if retErr != nil {
		return "", retErr
	}
	if err != nil {
		return "", fmt.Errorf("doltlog.Put: %w", err)
	}
	return id, nil
}

func insertMetadata(ctx context.Context, tx *sql.Tx, id types.ID, metadata types.Metadata) error {
	for k, v := range metadata {
		if _, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO datum_metadata(datum_id, meta_key, meta_val) VALUES (?, ?, ?)
		`, id, k, fmt.Sprint(v)); err != nil {
			return err
		}
	}
	return nil
}

func mergeMetadata(ctx context.Context, tx *sql.Tx, id types.ID, metadata types.Metadata) error {
	return insertMetadata(ctx, tx, id, metadata)
}

// UpdateMetadata implements datum.Store.
func (s *Store) UpdateMetadata(ctx context.Context, id types.ID, metadata types.Metadata) error {
	ctx, span := tracer.Start(ctx, "doltlog.update_metadata", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { endSpan(span, nil) }()

	var retErr error
	err := withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM datums WHERE id = ?)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			retErr = types.Wrap("doltlog.UpdateMetadata", types.ErrNotFound, nil)
			return backoff.Permanent(retErr)
		}

		for k, v := range metadata {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO datum_metadata(datum_id, meta_key, meta_val) VALUES (?, ?, ?)
				ON DUPLICATE KEY UPDATE meta_val = VALUES(meta_val)
			`, id, k, fmt.Sprint(v)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if retErr != nil {
		return retErr
	}
	if err != nil {
		return fmt.Errorf("doltlog.UpdateMetadata: %w", err)
	}
	return nil
}

// Get implements datum.Store.
func (s *Store) Get(ctx context.Context, id types.ID) (*types.Datum, error) {
	ctx, span := tracer.Start(ctx, "doltlog.get", trace.WithSpanKind(trace.SpanKindClient))
	defer func() { endSpan(span, nil) }()

	var d types.Datum
	var createdAtNanos int64
	var causalParent string
	err := withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT namespace_, content, created_at, causal_parent FROM datums WHERE id = ?
		`, id)
		return row.Scan(&d.Namespace, &d.Content, &createdAtNanos, &causalParent)
	})
	if err == sql.ErrNoRows {
		return nil, types.Wrap("doltlog.Get", types.ErrNotFound, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("doltlog.Get: %w", err)
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
	meta := types.Metadata{}
	err := withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT meta_key, meta_val FROM datum_metadata WHERE datum_id = ?`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				return err
			}
			meta[k] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("doltlog.loadMetadata: %w", err)
	}
	return meta, nil
}

// List implements datum.Store.
func (s *Store) List(ctx context.Context, namespace string, since, until int64) iter.Seq2[*types.Datum, error] {
	return func(yield func(*types.Datum, error) bool) {
		query := `SELECT id FROM datums WHERE namespace_ = ? AND ordinal_ > ?`
		args := []any{namespace, since}
		if until > 0 {
			query += ` AND ordinal_ <= ?`
			args = append(args, until)
		}
		query += ` ORDER BY ordinal_ ASC`

		var ids []types.ID
		err := withRetry(ctx, func() error {
			ids = nil
			rows, err := s.db.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					return err
				}
				ids = append(ids, types.ID(id))
			}
			return rows.Err()
		})
		if err != nil {
			yield(nil, fmt.Errorf("doltlog.List: %w", err))
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
			return nil, types.Wrap("doltlog.Parents", types.ErrIntegrityViolation, nil)
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
