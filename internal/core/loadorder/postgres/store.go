// Package postgres keeps the load-order table in PostgreSQL. The run lease
// is a session-level advisory lock.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/lib/pq"

	"github.com/syntrixbase/inventory/internal/core/loadorder"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "inventory_load_order"

type Store struct {
	db      *sql.DB
	table   string
	quoted  string
	lockKey int64
	owned   bool
	logger  *slog.Logger
}

var _ loadorder.Store = (*Store)(nil)

// NewStore wraps an existing connection pool. The caller keeps ownership of db.
func NewStore(db *sql.DB, table string, logger *slog.Logger) *Store {
	if table == "" {
		table = DefaultTable
	}
	h := fnv.New64a()
	h.Write([]byte("loadorder:" + table))
	return &Store{
		db:      db,
		table:   table,
		quoted:  pq.QuoteIdentifier(table),
		lockKey: int64(h.Sum64() >> 1),
		logger:  logger.With("component", "loadorder-postgres"),
	}
}

// Open connects to dsn and makes sure the table exists.
func Open(ctx context.Context, dsn, table string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewStore(db, table, logger)
	s.owned = true
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the load-order table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    position    BIGINT NOT NULL,
    tmo_id      BIGINT PRIMARY KEY,
    status      VARCHAR(20) NOT NULL DEFAULT 'NOT_IN_PROGRESS',
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT %[2]s CHECK (
        status IN ('NOT_IN_PROGRESS', 'IN_PROGRESS')
    )
);

CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s(position);
`, s.quoted, pq.QuoteIdentifier("chk_"+s.table+"_status"), pq.QuoteIdentifier("idx_"+s.table+"_position"))
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create load order table: %w", err)
	}
	return nil
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Store) Replace(ctx context.Context, tmoIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.quoted); err != nil {
		return fmt.Errorf("truncate load order: %w", err)
	}
	if len(tmoIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO `+s.quoted+` (position, tmo_id, status)
		SELECT u.ord, u.id, $2
		FROM unnest($1::bigint[]) WITH ORDINALITY AS u(id, ord)
	`, pq.Array(unique(tmoIDs)), string(loadorder.StatusNotInProgress))
		if err != nil {
			return fmt.Errorf("insert load order: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Add(ctx context.Context, tmoIDs []int64) error {
	if len(tmoIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+s.quoted+` (position, tmo_id, status)
		SELECT (SELECT COALESCE(MAX(position), 0) FROM `+s.quoted+`) + u.ord, u.id, $2
		FROM unnest($1::bigint[]) WITH ORDINALITY AS u(id, ord)
		ON CONFLICT (tmo_id) DO NOTHING
	`, pq.Array(unique(tmoIDs)), string(loadorder.StatusNotInProgress))
	if err != nil {
		return fmt.Errorf("append load order: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]loadorder.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, tmo_id, status FROM `+s.quoted+` ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []loadorder.Row
	for rows.Next() {
		var (
			r      loadorder.Row
			status string
		)
		if err := rows.Scan(&r.Position, &r.TMOID, &status); err != nil {
			return nil, err
		}
		r.Status = loadorder.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SetStatus(ctx context.Context, tmoID int64, status loadorder.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE `+s.quoted+` SET status = $1, updated_at = NOW() WHERE tmo_id = $2`, string(status), tmoID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: tmo %d", loadorder.ErrNotFound, tmoID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, tmoID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+s.quoted+` WHERE tmo_id = $1`, tmoID)
	return err
}

// TryLock takes a session advisory lock on a dedicated connection; the lock
// lives as long as that connection.
func (s *Store) TryLock(ctx context.Context) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, s.lockKey).Scan(&ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire run lease: %w", err)
	}
	if !ok {
		conn.Close()
		return nil, loadorder.ErrLocked
	}
	return func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, s.lockKey); err != nil {
			s.logger.Warn("Failed to release run lease", "error", err)
		}
		conn.Close()
	}, nil
}

// Close closes the pool when the store opened it.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
