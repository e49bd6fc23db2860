package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mangagen/internal/domain"
)

// Postgres is the durable Store used in production deployments.
//
// Expected schema:
//
//	CREATE TABLE manga_jobs (
//	    id            TEXT PRIMARY KEY,
//	    client_id     TEXT NOT NULL,
//	    user_id       TEXT NOT NULL DEFAULT '',
//	    status        TEXT NOT NULL,
//	    progress      INT  NOT NULL DEFAULT 0,
//	    request_json  JSONB NOT NULL,
//	    result_json   JSONB,
//	    error_code    TEXT NOT NULL DEFAULT '',
//	    error_message TEXT NOT NULL DEFAULT '',
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a job store backed by the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Create inserts a new job record.
func (s *Postgres) Create(ctx context.Context, job *domain.Job) error {
	requestJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	query := `
INSERT INTO manga_jobs (id, client_id, user_id, status, progress, request_json)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		job.ClientID,
		job.UserID,
		job.Status,
		job.Progress,
		requestJSON,
	)
	return err
}

// Get fetches a job by its identifier.
func (s *Postgres) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, client_id, user_id, status, progress, request_json, result_json, error_code, error_message, created_at, updated_at
FROM manga_jobs
WHERE id = $1;
`
	return scanJob(s.pool.QueryRow(ctx, query, jobID))
}

// SetProgress records a checkpoint. Terminal records are left untouched and
// progress never decreases, matching the in-memory store.
func (s *Postgres) SetProgress(ctx context.Context, jobID string, status domain.JobStatus, progress int) error {
	query := `
UPDATE manga_jobs
SET status = $2,
    progress = GREATEST(progress, $3),
    updated_at = NOW()
WHERE id = $1 AND status NOT IN ('done', 'error');
`
	_, err := s.pool.Exec(ctx, query, jobID, status, progress)
	return err
}

// SetResult marks the job done with its final result.
func (s *Postgres) SetResult(ctx context.Context, jobID string, result *domain.MangaResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	query := `
UPDATE manga_jobs
SET status = 'done',
    progress = 100,
    result_json = $2,
    updated_at = NOW()
WHERE id = $1 AND status NOT IN ('done', 'error');
`
	_, err = s.pool.Exec(ctx, query, jobID, resultJSON)
	return err
}

// SetError marks the job failed, attaching the fallback result.
func (s *Postgres) SetError(ctx context.Context, jobID string, code domain.ErrorCode, message string, fallback *domain.MangaResult) error {
	var resultJSON []byte
	if fallback != nil {
		var err error
		resultJSON, err = json.Marshal(fallback)
		if err != nil {
			return fmt.Errorf("encode fallback result: %w", err)
		}
	}
	query := `
UPDATE manga_jobs
SET status = 'error',
    error_code = $2,
    error_message = $3,
    result_json = COALESCE($4, result_json),
    updated_at = NOW()
WHERE id = $1 AND status NOT IN ('done', 'error');
`
	_, err := s.pool.Exec(ctx, query, jobID, code, message, nullableBytes(resultJSON))
	return err
}

// DeleteExpired removes records created before olderThan regardless of state.
func (s *Postgres) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM manga_jobs WHERE created_at < $1;`, olderThan)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ClaimQueued atomically claims the oldest queued job for a worker instance.
// SKIP LOCKED keeps concurrent workers off the same record; claiming by
// primary key means a redelivered submission for an already-claimed id is a
// no-op. Returns domain.ErrNotFound when no job is available.
func (s *Postgres) ClaimQueued(ctx context.Context) (*domain.Job, error) {
	query := `
UPDATE manga_jobs
SET status = 'processing',
    updated_at = NOW()
WHERE id = (
    SELECT id FROM manga_jobs
    WHERE status = 'queued'
    ORDER BY created_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, client_id, user_id, status, progress, request_json, result_json, error_code, error_message, created_at, updated_at;
`
	return scanJob(s.pool.QueryRow(ctx, query))
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job         domain.Job
		requestJSON []byte
		resultJSON  []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.ClientID,
		&job.UserID,
		&job.Status,
		&job.Progress,
		&requestJSON,
		&resultJSON,
		&job.ErrorCode,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(requestJSON, &job.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if len(resultJSON) > 0 {
		var result domain.MangaResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ Store = (*Postgres)(nil)
