package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mangagen/internal/http/handlers"
	"mangagen/internal/middleware"
)

// NewRouter wires the API surface: submission, polling, worker ingress,
// signed blob serving and the usage snapshot.
func NewRouter(app *handlers.App, rateLimitPerMin int) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.I18N("ja"))
	if rateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(rateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.SubmitJob)
		r.Get("/{job_id}", app.JobStatus)
	})

	r.Post("/v1/process", app.ProcessJob)
	r.Get("/v1/usage", app.UsageStatus)
	r.Get("/v1/blobs/*", app.ServeBlob)

	return r
}
