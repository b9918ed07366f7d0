package ratelimit

import (
	"context"
	"database/sql"
	"time"
)

// PostgresCounter backs the limiter with a shared rate_windows table. The
// upsert restarts an expired window or increments the live one in a single
// statement, which gives the atomic increment-and-get the limiter requires
// across multiple nodes.
type PostgresCounter struct {
	db *sql.DB
}

func NewPostgresCounter(db *sql.DB) *PostgresCounter {
	return &PostgresCounter{db: db}
}

func (c *PostgresCounter) Incr(ctx context.Context, key string, dur time.Duration) (int, time.Time, error) {
	query := `INSERT INTO rate_windows (identity, count, reset_at) VALUES ($1, 1, NOW() + $2 * INTERVAL '1 second')
		ON CONFLICT (identity) DO UPDATE SET
			count = CASE WHEN rate_windows.reset_at < NOW() THEN 1 ELSE rate_windows.count + 1 END,
			reset_at = CASE WHEN rate_windows.reset_at < NOW() THEN NOW() + $2 * INTERVAL '1 second' ELSE rate_windows.reset_at END
		RETURNING count, reset_at`

	var count int
	var resetAt time.Time
	err := c.db.QueryRowContext(ctx, query, key, int64(dur.Seconds())).Scan(&count, &resetAt)
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, resetAt, nil
}

func (c *PostgresCounter) Peek(ctx context.Context, key string) (int, time.Time, error) {
	query := `SELECT count, reset_at FROM rate_windows WHERE identity = $1`

	var count int
	var resetAt time.Time
	err := c.db.QueryRowContext(ctx, query, key).Scan(&count, &resetAt)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, resetAt, nil
}
