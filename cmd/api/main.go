package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"mangagen/internal/admission"
	"mangagen/internal/genai"
	"mangagen/internal/http/handlers"
	"mangagen/internal/http/httpapi"
	"mangagen/internal/infra"
	"mangagen/internal/jobstore"
	"mangagen/internal/runner"
	"mangagen/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store jobstore.Store
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: db connection failed")
		}
		defer pool.Close()
		store = jobstore.NewPostgres(pool)
	} else {
		logger.Info().Msg("api: no DATABASE_URL, using in-memory job store")
		store = jobstore.NewMemory()
	}

	blobs, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}
	signer := storage.NewSigner(cfg.BlobSignSecret, "/v1/blobs")

	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("api: GEMINI_API_KEY is empty, generation calls will fail")
	}
	generator := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})

	gate := admission.NewGate(cfg.AdmissionTimeout)
	jobRunner := runner.New(store, gate, generator, blobs, cfg.GenerationTimeout, logger)

	app := &handlers.App{
		Store:        store,
		Gate:         gate,
		Runner:       jobRunner,
		Blobs:        blobs,
		Signer:       signer,
		Logger:       logger,
		DispatchMode: cfg.DispatchMode,
		BlobURLTTL:   cfg.BlobURLTTL,
	}
	router := httpapi.NewRouter(app, cfg.RateLimitPerMin)
	server := infra.NewHTTPServer(cfg, router)

	go jobstore.Sweep(ctx, store, cfg.SweepInterval, cfg.JobTTL, logger)

	go func() {
		logger.Info().Str("model", generator.Model()).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
