package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"mangagen/internal/domain"
)

type processRequest struct {
	JobID   string              `json:"jobId"`
	Request domain.MangaRequest `json:"request"`
	UserID  string              `json:"userId"`
}

// ProcessJob is the worker ingress for queue-based dispatch. The response
// code is the redelivery contract: 400 only for request-shape errors, 200
// for any business outcome (the job record already holds it, redelivering
// would not change it), 5xx only when infrastructure prevented the outcome
// from being recorded.
func (a *App) ProcessJob(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		a.error(w, r, http.StatusBadRequest, string(domain.ErrorCodeValidation))
		return
	}

	job, err := a.Store.Get(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, r, http.StatusNotFound, "not_found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", req.JobID).Msg("process: load job failed")
		a.error(w, r, http.StatusInternalServerError, string(domain.ErrorCodeUnknown))
		return
	}
	if job.Status.Terminal() {
		// Redelivery of a finished job: nothing to do.
		a.json(w, http.StatusOK, map[string]string{"status": string(job.Status)})
		return
	}

	runErr := a.Runner.Run(r.Context(), job)

	// The run may fail for business reasons that are now recorded on the
	// record, or for infra reasons that are not. Reload to tell them apart.
	final, err := a.Store.Get(r.Context(), req.JobID)
	if err != nil || !final.Status.Terminal() {
		a.Logger.Error().
			Err(runErr).
			Str("job_id", req.JobID).
			Msg("process: job outcome not recorded")
		a.error(w, r, http.StatusInternalServerError, string(domain.ErrorCodeUnknown))
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": string(final.Status)})
}
