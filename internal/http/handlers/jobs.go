package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"mangagen/internal/domain"
	"mangagen/internal/infra"
	"mangagen/internal/middleware"
)

type submitResponse struct {
	JobID string `json:"jobId"`
}

type statusResponse struct {
	Status    domain.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	Result    *statusResult    `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorCode domain.ErrorCode `json:"errorCode,omitempty"`
}

type statusResult struct {
	Title     string            `json:"title"`
	Panels    []domain.Panel    `json:"panels"`
	ImageURLs []string          `json:"image_urls"`
	Meta      domain.ResultMeta `json:"meta"`
}

// SubmitJob validates a request, passes the admission gate, records the job
// and dispatches it. The job id is returned immediately; the caller polls
// for the outcome.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req domain.MangaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, string(domain.ErrorCodeValidation))
		return
	}
	if err := req.Validate(); err != nil {
		a.error(w, r, http.StatusBadRequest, string(domain.ErrorCodeValidation))
		return
	}

	clientID := middleware.ClientIP(r)
	userID := r.Header.Get("X-User-ID")
	jobID := uuid.NewString()

	if err := a.Gate.CheckAndReserve(clientID, req.URL, jobID); err != nil {
		a.error(w, r, http.StatusConflict, string(domain.ErrorCodeConcurrent))
		return
	}

	job := &domain.Job{
		ID:       jobID,
		ClientID: clientID,
		UserID:   userID,
		Status:   domain.JobStatusQueued,
		Progress: 0,
		Request:  req,
	}
	if err := a.Store.Create(r.Context(), job); err != nil {
		a.Gate.Release(clientID, jobID)
		a.Logger.Error().Err(err).Msg("submit: create job record failed")
		a.error(w, r, http.StatusInternalServerError, string(domain.ErrorCodeUnknown))
		return
	}

	if a.DispatchMode == infra.DispatchInline {
		// Fire and forget: the job outlives this request.
		go func() {
			_ = a.Runner.Run(context.Background(), job)
		}()
	}
	// Queue dispatch leaves the record queued; a worker claims it by id,
	// so a duplicate delivery of the same submission is a no-op.

	a.Logger.Info().
		Str("job_id", jobID).
		Str("client_id", clientID).
		Str("url", req.URL).
		Msg("submit: job accepted")
	a.json(w, http.StatusAccepted, submitResponse{JobID: jobID})
}

// JobStatus translates the stored record into the client-facing payload.
// Signed image URLs are derived at read time, so an expired link heals on
// the next poll without touching job state.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, r, http.StatusBadRequest, string(domain.ErrorCodeValidation))
		return
	}
	job, err := a.Store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, r, http.StatusNotFound, "not_found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("status: load job failed")
		a.error(w, r, http.StatusInternalServerError, string(domain.ErrorCodeUnknown))
		return
	}

	resp := statusResponse{Status: job.Status, Progress: job.Progress}
	if job.Result != nil {
		resp.Result = &statusResult{
			Title:     job.Result.Title,
			Panels:    job.Result.Panels,
			ImageURLs: a.signImageURLs(job.Result.ImageURLs),
			Meta:      job.Result.Meta,
		}
	}
	if job.Status == domain.JobStatusError {
		resp.ErrorCode = job.ErrorCode
		resp.Error = localizedError(job, middleware.LocaleFromContext(r.Context()))
	}
	a.json(w, http.StatusOK, resp)
}

// UsageStatus reports the calling client's daily usage snapshot.
func (a *App) UsageStatus(w http.ResponseWriter, r *http.Request) {
	usage := a.Gate.Usage(middleware.ClientIP(r))
	payload := map[string]any{
		"date":   usage.Date,
		"count":  usage.Count,
		"active": usage.Active != nil,
	}
	if usage.Active != nil {
		payload["activeJobId"] = usage.Active.JobID
	}
	a.json(w, http.StatusOK, payload)
}

func (a *App) signImageURLs(objectPaths []string) []string {
	if len(objectPaths) == 0 {
		return []string{}
	}
	signed := make([]string, 0, len(objectPaths))
	for _, path := range objectPaths {
		if a.Signer == nil {
			signed = append(signed, path)
			continue
		}
		if url := a.Signer.Sign(path, a.BlobURLTTL); url != "" {
			signed = append(signed, url)
		}
	}
	return signed
}
