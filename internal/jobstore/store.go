package jobstore

import (
	"context"
	"time"

	"mangagen/internal/domain"
	"mangagen/internal/infra"
)

// Store persists job records. It does not interpret status, progress or
// result beyond two structural guarantees every implementation upholds:
// terminal records (done/error) are never modified again, and progress
// never decreases.
type Store interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	SetProgress(ctx context.Context, jobID string, status domain.JobStatus, progress int) error
	SetResult(ctx context.Context, jobID string, result *domain.MangaResult) error
	SetError(ctx context.Context, jobID string, code domain.ErrorCode, message string, fallback *domain.MangaResult) error
	DeleteExpired(ctx context.Context, olderThan time.Time) (int, error)
}

// Sweep deletes records older than ttl every interval until ctx is done.
// Eviction is independent of job state: even terminal records are purged to
// bound storage growth.
func Sweep(ctx context.Context, store Store, interval, ttl time.Duration, logger infra.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.Error().Err(err).Msg("jobstore: sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("deleted", n).Msg("jobstore: swept expired job records")
			}
		}
	}
}
