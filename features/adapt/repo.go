package adapt

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

type Repository interface {
	Create(ctx context.Context, jobID string, totalChunks int) error
	RecordChunk(ctx context.Context, jobID string, index int, content string) error
	SaveSummary(ctx context.Context, jobID, summary string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkError(ctx context.Context, jobID, message string) error
	Snapshot(ctx context.Context, jobID string) (*Snapshot, error)
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error)
	CountByState(ctx context.Context) (map[string]int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Create registers a job. Re-creating an existing id resets its progress,
// which makes publishing the same task twice harmless.
func (r *PostgresRepo) Create(ctx context.Context, jobID string, totalChunks int) error {
	query := `INSERT INTO adapt_jobs (id, state, total_chunks) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, total_chunks = EXCLUDED.total_chunks, error = '', summary = '', updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, jobID, StateProcessing, totalChunks)
	return err
}

// RecordChunk is idempotent per (job, index): a redelivered result overwrites
// the same row instead of inflating the processed count.
func (r *PostgresRepo) RecordChunk(ctx context.Context, jobID string, index int, content string) error {
	query := `INSERT INTO adapt_chunks (job_id, idx, content) VALUES ($1, $2, $3) ON CONFLICT (job_id, idx) DO UPDATE SET content = EXCLUDED.content`
	_, err := r.db.ExecContext(ctx, query, jobID, index, content)
	return err
}

func (r *PostgresRepo) SaveSummary(ctx context.Context, jobID, summary string) error {
	query := `UPDATE adapt_jobs SET summary = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, jobID, summary)
	return err
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, jobID string) error {
	query := `UPDATE adapt_jobs SET state = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, jobID, StateCompleted)
	return err
}

func (r *PostgresRepo) MarkError(ctx context.Context, jobID, message string) error {
	query := `UPDATE adapt_jobs SET state = $2, error = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, jobID, StateFailed, message)
	return err
}

// Snapshot reads the job row plus its finished chunks. The processed count is
// derived from chunk rows, never from a separate counter, so it cannot drift.
func (r *PostgresRepo) Snapshot(ctx context.Context, jobID string) (*Snapshot, error) {
	snap := &Snapshot{SimplifiedChunks: map[string]string{}}

	var state string
	query := `SELECT state, total_chunks, error, summary FROM adapt_jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(&state, &snap.TotalChunks, &snap.Error, &snap.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.Completed = state == StateCompleted

	rows, err := r.db.QueryContext(ctx, `SELECT idx, content FROM adapt_chunks WHERE job_id = $1 ORDER BY idx`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var content string
		if err := rows.Scan(&idx, &content); err != nil {
			return nil, err
		}
		snap.SimplifiedChunks[strconv.Itoa(idx)] = content
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snap.ProcessedChunks = len(snap.SimplifiedChunks)
	return snap, nil
}

// PurgeExpired removes terminal jobs not touched within the retention window.
// Chunk rows go with them via the FK cascade.
func (r *PostgresRepo) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM adapt_jobs WHERE state IN ($1, $2) AND updated_at < NOW() - $3 * INTERVAL '1 second'`
	res, err := r.db.ExecContext(ctx, query, StateCompleted, StateFailed, int64(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) CountByState(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM adapt_jobs GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
