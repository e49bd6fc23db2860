package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Dispatch modes for accepted submissions.
const (
	DispatchInline = "inline" // run in-process in a goroutine
	DispatchQueue  = "queue"  // leave queued for a worker process to claim
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// DatabaseURL selects the durable Postgres job store; when empty the
	// in-memory store is used (single-process deployments and tests).
	DatabaseURL string

	StoragePath    string
	BlobSignSecret string
	BlobURLTTL     time.Duration

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	DispatchMode      string
	GenerationTimeout time.Duration
	AdmissionTimeout  time.Duration
	JobTTL            time.Duration
	SweepInterval     time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from the environment (and an optional .env
// file) and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		BlobSignSecret:    os.Getenv("BLOB_SIGN_SECRET"),
		BlobURLTTL:        time.Minute * time.Duration(getEnvInt("BLOB_URL_TTL_MINUTES", 15)),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		DispatchMode:      getEnv("DISPATCH_MODE", DispatchInline),
		GenerationTimeout: time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 120)),
		AdmissionTimeout:  time.Second * time.Duration(getEnvInt("ADMISSION_TIMEOUT_SECONDS", 180)),
		JobTTL:            time.Minute * time.Duration(getEnvInt("JOB_TTL_MINUTES", 10)),
		SweepInterval:     time.Minute * time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 1)),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DispatchMode != DispatchInline && cfg.DispatchMode != DispatchQueue {
		return nil, fmt.Errorf("DISPATCH_MODE must be %q or %q", DispatchInline, DispatchQueue)
	}
	if cfg.DispatchMode == DispatchQueue && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for queue dispatch")
	}
	if cfg.BlobSignSecret == "" {
		if cfg.AppEnv != "development" {
			return nil, fmt.Errorf("BLOB_SIGN_SECRET is required outside development")
		}
		cfg.BlobSignSecret = "dev-insecure-secret"
	}
	// GC must outlive the generation deadline or a live job could lose its
	// record mid-run.
	if cfg.JobTTL <= cfg.GenerationTimeout {
		return nil, fmt.Errorf("JOB_TTL_MINUTES must exceed the generation timeout")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
