package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `CREATE TABLE IF NOT EXISTS processed_payments (
	key        TEXT PRIMARY KEY,
	expires_at TIMESTAMPTZ NOT NULL
)`

// The upsert only overwrites an expired row, so exactly one concurrent
// caller sees a row affected.
const reserveSQL = `INSERT INTO processed_payments (key, expires_at)
VALUES ($1, now() + $2::interval)
ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
WHERE processed_payments.expires_at <= now()`

// PostgresStore keeps processed keys in a table. Useful when the order
// history already lives in Postgres and Redis is not deployed.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating processed_payments: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Reserve implements Store.
func (s *PostgresStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, reserveSQL, key, fmt.Sprintf("%d milliseconds", ttl.Milliseconds()))
	if err != nil {
		return false, fmt.Errorf("reserving %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release implements Store.
func (s *PostgresStore) Release(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM processed_payments WHERE key = $1`, key); err != nil {
		return fmt.Errorf("releasing %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
