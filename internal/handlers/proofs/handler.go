package proofs

import (
	"errors"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pbnjay/memory"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/core/services/job"
	"gitlab.com/zkboost.net/internal/core/services/router"
	"gitlab.com/zkboost.net/internal/domain"
	"gitlab.com/zkboost.net/internal/handlers"
	"gitlab.com/zkboost.net/internal/handlers/response"
)

type Config struct {
	// SyncWait bounds how long sync endpoints wait before answering 202.
	SyncWait time.Duration

	// DefaultWebhook receives async proofs without an explicit callback_url.
	DefaultWebhook string

	Version string
}

// ProofHandler serves execute, prove, verify and info
type ProofHandler struct {
	router    router.IRouter
	jobs      job.IJobManager
	callbacks secondary.ResultSinkFactory
	logger    primary.Logger
	cfg       Config
}

func NewProofHandler(
	r router.IRouter,
	jobs job.IJobManager,
	callbacks secondary.ResultSinkFactory,
	logger primary.Logger,
	cfg Config,
) *ProofHandler {
	return &ProofHandler{
		router:    r,
		jobs:      jobs,
		callbacks: callbacks,
		logger:    logger,
		cfg:       cfg,
	}
}

// RegisterRoutes registers the API routes for ProofHandler
func (h *ProofHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/execute", h.Execute).Methods(http.MethodPost)
	r.HandleFunc("/prove", h.Prove).Methods(http.MethodPost)
	r.HandleFunc("/verify", h.Verify).Methods(http.MethodPost)
	r.HandleFunc("/info", h.Info).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

func (h *ProofHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !handlers.DecodeJSON(w, r, &req) {
		return
	}

	jobID, err := h.router.Execute(r.Context(), req.ProgramID, req.Input)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	h.await(w, r, jobID, func(j *domain.Job) interface{} {
		res := j.Result.Execution
		return ExecuteResponse{
			JobID:           j.ID,
			ProgramID:       j.ProgramID,
			TotalNumCycles:  res.TotalNumCycles,
			ExecutionTimeMs: handlers.Millis(res.ExecutionDuration),
			PublicValues:    res.Output,
		}
	})
}

func (h *ProofHandler) Prove(w http.ResponseWriter, r *http.Request) {
	var req ProveRequest
	if !handlers.DecodeJSON(w, r, &req) {
		return
	}

	callback := req.CallbackURL
	if callback == "" && req.Async {
		callback = h.cfg.DefaultWebhook
	}
	if callback != "" && !validCallback(callback) {
		response.BadRequest(w, "invalid callback_url")
		return
	}

	jobID, err := h.router.Prove(r.Context(), req.ProgramID, req.Input)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	if callback != "" {
		if err := h.jobs.RegisterCallback(r.Context(), jobID, h.callbacks.Sink(callback)); err != nil {
			h.logger.Error("Failed to register callback", "jobId", jobID, "error", err)
		}
	}

	if req.Async {
		response.WriteSuccess(w, http.StatusAccepted, AcceptedResponse{JobID: jobID, State: domain.JobStatePending})
		return
	}

	h.await(w, r, jobID, func(j *domain.Job) interface{} {
		res := j.Result.Proof
		return ProveResponse{
			JobID:          j.ID,
			ProgramID:      j.ProgramID,
			Proof:          res.Proof,
			ProofSizeBytes: res.ProofSizeBytes,
			ProvingTimeMs:  handlers.Millis(res.ProvingTime),
		}
	})
}

func (h *ProofHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !handlers.DecodeJSON(w, r, &req) {
		return
	}

	jobID, err := h.router.Verify(r.Context(), req.ProgramID, req.Proof)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	h.await(w, r, jobID, func(j *domain.Job) interface{} {
		res := j.Result.Verification
		return VerifyResponse{
			JobID:         j.ID,
			ProgramID:     j.ProgramID,
			Verified:      res.Verified,
			FailureReason: res.FailureReason,
		}
	})
}

// await waits up to SyncWait for the job and renders its outcome. A job
// still running answers 202 with its id.
func (h *ProofHandler) await(w http.ResponseWriter, r *http.Request, jobID uuid.UUID, render func(*domain.Job) interface{}) {
	j, err := h.jobs.AwaitResult(r.Context(), jobID, h.cfg.SyncWait)
	if errors.Is(err, job.ErrAwaitTimeout) {
		response.WriteSuccess(w, http.StatusAccepted, AcceptedResponse{JobID: jobID, State: j.State})
		return
	}
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	if j.State != domain.JobStateCompleted || j.Result == nil {
		response.WriteJobFailure(w, j)
		return
	}
	response.WriteSuccess(w, http.StatusOK, render(j))
}

func (h *ProofHandler) Info(w http.ResponseWriter, r *http.Request) {
	info := h.router.Info()
	response.WriteSuccess(w, http.StatusOK, InfoResponse{
		Programs:    info.Programs,
		Backends:    info.Backends,
		CPUCount:    runtime.NumCPU(),
		TotalMemory: memory.TotalMemory(),
		FreeMemory:  memory.FreeMemory(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		Version:     h.cfg.Version,
	})
}

func (h *ProofHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func validCallback(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
