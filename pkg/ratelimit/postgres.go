package ratelimit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the sliding windows in the rate_limit_hits table.
// Atomicity comes from a per-bucket transactional advisory lock: every
// Admit for a bucket serializes on pg_advisory_xact_lock(hashtext(bucket)),
// so concurrent callers can never overshoot the limit.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Admit(ctx context.Context, key, member string, nowMs, windowMs int64, limit int, ttlSec int) (int, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin rate-limit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return 0, false, fmt.Errorf("failed to take bucket lock: %w", err)
	}

	// drop members outside the window; doubles as TTL cleanup
	cutoff := nowMs - windowMs
	if _, err := tx.Exec(ctx,
		"DELETE FROM rate_limit_hits WHERE bucket = $1 AND score_ms < $2", key, cutoff); err != nil {
		return 0, false, fmt.Errorf("failed to trim window: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM rate_limit_hits WHERE bucket = $1", key).Scan(&count); err != nil {
		return 0, false, fmt.Errorf("failed to count window: %w", err)
	}

	if count >= limit {
		if err := tx.Commit(ctx); err != nil {
			return 0, false, fmt.Errorf("failed to commit rate-limit transaction: %w", err)
		}
		return count, false, nil
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO rate_limit_hits (bucket, member, score_ms) VALUES ($1, $2, $3)",
		key, member, nowMs); err != nil {
		return 0, false, fmt.Errorf("failed to record hit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("failed to commit rate-limit transaction: %w", err)
	}
	return count, true, nil
}
