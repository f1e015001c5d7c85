package jobs

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/core/services/job"
	"gitlab.com/zkboost.net/internal/handlers"
	"gitlab.com/zkboost.net/internal/handlers/response"
)

const (
	DefaultWait = 30 * time.Second
	MaxWait     = 10 * time.Minute
)

// JobHandler handles job API requests
type JobHandler struct {
	jobs      job.IJobManager
	callbacks secondary.ResultSinkFactory
	logger    primary.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs job.IJobManager, callbacks secondary.ResultSinkFactory, logger primary.Logger) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		callbacks: callbacks,
		logger:    logger,
	}
}

// RegisterRoutes registers the API routes for JobHandler
func (h *JobHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/jobs/{jobId}", h.GetJob).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{jobId}/wait", h.WaitJob).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{jobId}/cancel", h.CancelJob).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{jobId}/callback", h.RegisterCallback).Methods(http.MethodPost)
}

// GetJob handles job retrieval requests
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := handlers.JobID(w, r)
	if !ok {
		return
	}

	j, err := h.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusOK, j)
}

// WaitJob long-polls until the job is terminal or ?timeout elapses, then
// returns the snapshot; 202 means it is still in progress
func (h *JobHandler) WaitJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := handlers.JobID(w, r)
	if !ok {
		return
	}

	timeout := DefaultWait
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			response.BadRequest(w, "invalid timeout "+raw)
			return
		}
		timeout = d
	}
	if timeout > MaxWait {
		timeout = MaxWait
	}

	j, err := h.jobs.AwaitResult(r.Context(), jobID, timeout)
	switch {
	case errors.Is(err, job.ErrAwaitTimeout):
		response.WriteSuccess(w, http.StatusAccepted, j)
	case err != nil:
		response.WriteDomainError(w, err)
	default:
		response.WriteSuccess(w, http.StatusOK, j)
	}
}

// CancelJob handles job cancellation requests. Cancelling a terminal job
// returns it unchanged.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := handlers.JobID(w, r)
	if !ok {
		return
	}

	j, err := h.jobs.Cancel(r.Context(), jobID)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	h.logger.Info("Job cancel requested", "jobId", jobID, "state", j.State)
	response.WriteSuccess(w, http.StatusOK, j)
}

func (h *JobHandler) RegisterCallback(w http.ResponseWriter, r *http.Request) {
	jobID, ok := handlers.JobID(w, r)
	if !ok {
		return
	}

	var req CallbackRequest
	if !handlers.DecodeJSON(w, r, &req) {
		return
	}
	u, err := url.ParseRequestURI(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		response.BadRequest(w, "invalid callback url")
		return
	}

	if err := h.jobs.RegisterCallback(r.Context(), jobID, h.callbacks.Sink(req.URL)); err != nil {
		response.WriteDomainError(w, err)
		return
	}

	j, err := h.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusAccepted, CallbackResponse{JobID: jobID, State: j.State})
}
