package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mangagen/internal/domain"
	"mangagen/internal/genai"
	"mangagen/internal/infra"
	"mangagen/internal/jobstore"
	"mangagen/internal/runner"
	"mangagen/internal/storage"
)

const jobPollInterval = 2 * time.Second

type jobWorker struct {
	ctx    context.Context
	store  *jobstore.Postgres
	runner *runner.Runner
	logger infra.Logger
}

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("worker: DATABASE_URL is required")
	}
	pool, err := infra.NewDBPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	store := jobstore.NewPostgres(pool)

	blobs, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("worker: GEMINI_API_KEY is empty, generation calls will fail")
	}
	generator := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})

	// No admission gate here: reservations live in the API process and
	// expire on their own.
	jobRunner := runner.New(store, nil, generator, blobs, cfg.GenerationTimeout, logger)

	go jobstore.Sweep(ctx, store, cfg.SweepInterval, cfg.JobTTL, logger)

	worker := &jobWorker{ctx: ctx, store: store, runner: jobRunner, logger: logger}
	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run claims queued jobs one at a time until the context is cancelled.
func (w *jobWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		job, err := w.store.ClaimQueued(w.ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				w.logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			select {
			case <-w.ctx.Done():
				return w.ctx.Err()
			case <-time.After(jobPollInterval):
			}
			continue
		}

		w.logger.Info().Str("job_id", job.ID).Str("url", job.Request.URL).Msg("worker: picked job")
		if err := w.runner.Run(w.ctx, job); err != nil {
			// The runner already recorded the terminal outcome; this is
			// diagnostics only, never a retry signal.
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: job failed")
		}
	}
}
