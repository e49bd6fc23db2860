// Package runner drives a job through its state machine:
// queued → processing → done|error. Checkpoints are persisted in order so a
// polling observer always sees monotonic progress, and every failure after
// creation is captured here, mapped to the error taxonomy and recorded with
// a fallback result rather than re-thrown as a retryable signal.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mangagen/internal/admission"
	"mangagen/internal/domain"
	"mangagen/internal/genai"
	"mangagen/internal/infra"
	"mangagen/internal/jobstore"
	"mangagen/internal/planner"
)

// Progress checkpoints, persisted before the work behind them proceeds.
const (
	progressAccepted  = 30
	progressPlanned   = 50
	progressGenerated = 70
	progressUploading = 85
)

const defaultMaxEdge = 1024

// Generator produces images for a prompt. Satisfied by *genai.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*genai.Output, error)
}

// Uploader stores a generated data URL and returns its object path.
// Satisfied by *storage.FileStore.
type Uploader interface {
	Upload(ctx context.Context, ownerID, dataURL string) (string, error)
}

// Runner executes jobs. It is the only component that mutates job status,
// progress, result and error.
type Runner struct {
	store     jobstore.Store
	gate      *admission.Gate
	generator Generator
	uploader  Uploader
	logger    infra.Logger
	timeout   time.Duration
	maxEdge   int
}

// New creates a runner. gate may be nil in worker processes that have no
// local admission state; reservation expiry covers them.
func New(store jobstore.Store, gate *admission.Gate, generator Generator, uploader Uploader, timeout time.Duration, logger infra.Logger) *Runner {
	return &Runner{
		store:     store,
		gate:      gate,
		generator: generator,
		uploader:  uploader,
		logger:    logger,
		timeout:   timeout,
		maxEdge:   defaultMaxEdge,
	}
}

// Run executes one job to a terminal state. The returned error reports what
// went wrong for the transport layer's logging; the job record itself is
// always left terminal (done, or error with a fallback result), so the
// delivery layer must not redeliver on it.
func (r *Runner) Run(ctx context.Context, job *domain.Job) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if r.gate != nil {
		defer r.gate.Release(job.ClientID, job.ID)
	}

	// The plan is derived up front: it is pure, and it doubles as the
	// fallback content when any later stage fails.
	plan := planner.BuildPanels(job.Request)

	if err := r.checkpoint(ctx, job, plan, progressAccepted); err != nil {
		return err
	}
	if err := r.checkpoint(ctx, job, plan, progressPlanned); err != nil {
		return err
	}

	prompt := planner.BuildPrompt(job.Request, plan.Panels)
	output, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return r.recordError(ctx, job, plan, err)
	}
	if err := r.checkpoint(ctx, job, plan, progressGenerated); err != nil {
		return err
	}

	if err := r.checkpoint(ctx, job, plan, progressUploading); err != nil {
		return err
	}
	owner := job.UserID
	if owner == "" {
		owner = job.ClientID
	}
	objectPaths := make([]string, 0, len(output.ImageURLs))
	for _, dataURL := range output.ImageURLs {
		path, err := r.uploader.Upload(ctx, owner, dataURL)
		if err != nil {
			return r.recordError(ctx, job, plan, fmt.Errorf("upload artifact: %w", err))
		}
		objectPaths = append(objectPaths, path)
	}

	result := r.buildResult(job, plan, objectPaths)
	if err := r.store.SetResult(context.WithoutCancel(ctx), job.ID, result); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("runner: record result failed")
		return err
	}
	r.logger.Info().
		Str("job_id", job.ID).
		Int("panels", len(plan.Panels)).
		Int("images", len(objectPaths)).
		Msg("runner: job done")
	return nil
}

// checkpoint persists one progress step. A failing write is itself a job
// failure: the observer contract requires every step to be durable before
// the next stage runs.
func (r *Runner) checkpoint(ctx context.Context, job *domain.Job, plan planner.Plan, progress int) error {
	if err := ctx.Err(); err != nil {
		return r.recordError(ctx, job, plan, err)
	}
	if err := r.store.SetProgress(ctx, job.ID, domain.JobStatusProcessing, progress); err != nil {
		return r.recordError(ctx, job, plan, fmt.Errorf("persist checkpoint %d: %w", progress, err))
	}
	return nil
}

// recordError maps the failure onto the taxonomy and writes the terminal
// error state with the planned panels as fallback content. The write uses a
// detached context so a timed-out job can still record its own timeout.
func (r *Runner) recordError(ctx context.Context, job *domain.Job, plan planner.Plan, cause error) error {
	code, message := classify(cause)
	fallback := r.buildResult(job, plan, nil)
	if err := r.store.SetError(context.WithoutCancel(ctx), job.ID, code, message, fallback); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("runner: record error failed")
	}
	r.logger.Warn().
		Err(cause).
		Str("job_id", job.ID).
		Str("error_code", string(code)).
		Msg("runner: job failed")
	return cause
}

func (r *Runner) buildResult(job *domain.Job, plan planner.Plan, objectPaths []string) *domain.MangaResult {
	return &domain.MangaResult{
		Title:     plan.Title,
		Panels:    plan.Panels,
		ImageURLs: objectPaths,
		Meta: domain.ResultMeta{
			PanelCount:  len(plan.Panels),
			GeneratedAt: time.Now().UTC(),
			SourceURL:   job.Request.URL,
			Format:      "image/png",
			MaxEdge:     r.maxEdge,
		},
	}
}

func classify(err error) (domain.ErrorCode, string) {
	var rateLimit *genai.RateLimitError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrorCodeTimeout, "generation did not finish in time"
	case errors.As(err, &rateLimit):
		return domain.ErrorCodeRateLimited, "generation service is throttling requests"
	default:
		return domain.ErrorCodeAPI, err.Error()
	}
}
