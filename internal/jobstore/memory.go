package jobstore

import (
	"context"
	"sync"
	"time"

	"mangagen/internal/domain"
)

// Memory is a mutex-guarded in-memory Store. It backs tests and single
// process deployments where durability across restarts is not required.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*domain.Job), now: time.Now}
}

// Create inserts a new record. Timestamps are assigned here so callers
// cannot backdate records past the TTL.
func (m *Memory) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := cloneJob(job)
	now := m.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.jobs[stored.ID] = stored
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// Get returns a copy of the record, or domain.ErrNotFound once evicted.
func (m *Memory) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

// SetProgress records a checkpoint. Writes against a terminal record and
// writes that would lower progress are ignored.
func (m *Memory) SetProgress(ctx context.Context, jobID string, status domain.JobStatus, progress int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = status
	if progress > job.Progress {
		job.Progress = progress
	}
	job.UpdatedAt = m.now()
	return nil
}

// SetResult transitions the record to done with progress 100.
func (m *Memory) SetResult(ctx context.Context, jobID string, result *domain.MangaResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = domain.JobStatusDone
	job.Progress = 100
	job.Result = cloneResult(result)
	job.UpdatedAt = m.now()
	return nil
}

// SetError transitions the record to error, attaching the fallback result.
func (m *Memory) SetError(ctx context.Context, jobID string, code domain.ErrorCode, message string, fallback *domain.MangaResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = domain.JobStatusError
	job.ErrorCode = code
	job.ErrorMessage = message
	job.Result = cloneResult(fallback)
	job.UpdatedAt = m.now()
	return nil
}

// DeleteExpired removes every record created before olderThan.
func (m *Memory) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, job := range m.jobs {
		if job.CreatedAt.Before(olderThan) {
			delete(m.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	cp := *job
	cp.Result = cloneResult(job.Result)
	return &cp
}

func cloneResult(result *domain.MangaResult) *domain.MangaResult {
	if result == nil {
		return nil
	}
	cp := *result
	cp.Panels = append([]domain.Panel(nil), result.Panels...)
	cp.ImageURLs = append([]string(nil), result.ImageURLs...)
	return &cp
}

var _ Store = (*Memory)(nil)
