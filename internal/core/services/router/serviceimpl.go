package router

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/core/services/job"
	"gitlab.com/zkboost.net/internal/core/services/limiter"
	"gitlab.com/zkboost.net/internal/core/services/registry"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ IRouter = (*Router)(nil)

const (
	DefaultMaxConcurrent = 1
	DefaultQueueDepth    = 16
)

// BackendConfig holds per-kind admission and timeout settings
type BackendConfig struct {
	MaxConcurrent int
	QueueDepth    int

	// Timeout bounds a single backend call; zero means none.
	Timeout time.Duration
}

type Router struct {
	registry atomic.Pointer[registry.Registry]
	jobs     job.IJobManager
	backends map[domain.BackendKind]BackendConfig
	limiters map[domain.BackendKind]*limiter.Limiter
	metrics  secondary.MetricsRecorder
	logger   primary.Logger
}

// NewRouter builds a router with one proving limiter per backend kind.
// Kinds missing from backends get the defaults.
func NewRouter(
	reg *registry.Registry,
	jobs job.IJobManager,
	backends map[domain.BackendKind]BackendConfig,
	metrics secondary.MetricsRecorder,
	logger primary.Logger,
) *Router {
	r := &Router{
		jobs:     jobs,
		backends: make(map[domain.BackendKind]BackendConfig, len(domain.BackendKinds)),
		limiters: make(map[domain.BackendKind]*limiter.Limiter, len(domain.BackendKinds)),
		metrics:  metrics,
		logger:   logger,
	}
	for _, kind := range domain.BackendKinds {
		cfg, ok := backends[kind]
		if !ok {
			cfg = BackendConfig{MaxConcurrent: DefaultMaxConcurrent, QueueDepth: DefaultQueueDepth}
		}
		r.backends[kind] = cfg
		r.limiters[kind] = limiter.New(string(kind), cfg.MaxConcurrent, cfg.QueueDepth)
	}
	r.SwapRegistry(reg)
	return r
}

func (r *Router) SwapRegistry(reg *registry.Registry) {
	r.registry.Store(reg)
	r.metrics.SetProgramsLoaded(reg.Len())
	r.logger.Info("Program registry loaded", "programs", reg.Len())
}

func (r *Router) Info() Info {
	reg := r.registry.Load()
	return Info{Programs: reg.Programs(), Backends: reg.Kinds()}
}

func (r *Router) Execute(ctx context.Context, programID string, input []byte) (uuid.UUID, error) {
	b, err := r.registry.Load().Resolve(programID)
	if err != nil {
		return uuid.Nil, err
	}
	return r.jobs.Submit(ctx, job.Task{
		Operation: domain.OperationExecute,
		ProgramID: programID,
		Timeout:   r.backends[b.Program.Backend].Timeout,
		Run: func(ctx context.Context) (*domain.JobResult, error) {
			res, err := b.Backend.Execute(ctx, b.Program, input)
			if err != nil {
				return nil, domain.Classify("execute", err)
			}
			return &domain.JobResult{Execution: res}, nil
		},
	})
}

// Prove is admitted before the job exists; a full backend fails fast with
// Backpressure and no job id.
func (r *Router) Prove(ctx context.Context, programID string, input []byte) (uuid.UUID, error) {
	b, err := r.registry.Load().Resolve(programID)
	if err != nil {
		return uuid.Nil, err
	}

	kind := b.Program.Backend
	ticket, err := r.limiters[kind].Admit()
	if err != nil {
		r.metrics.BackpressureRejected(kind)
		r.logger.Warn("Prove rejected by admission", "programId", programID, "backend", kind)
		return uuid.Nil, err
	}

	jobID, err := r.jobs.Submit(ctx, job.Task{
		Operation: domain.OperationProve,
		ProgramID: programID,
		Timeout:   r.backends[kind].Timeout,
		Gate: func(ctx context.Context) (func(), error) {
			if err := ticket.Wait(ctx); err != nil {
				ticket.Release()
				return nil, domain.Classify("admit", err)
			}
			return ticket.Release, nil
		},
		Run: func(ctx context.Context) (*domain.JobResult, error) {
			res, err := b.Backend.Prove(ctx, b.Program, input)
			if err != nil {
				return nil, domain.Classify("prove", err)
			}
			return &domain.JobResult{Proof: res}, nil
		},
	})
	if err != nil {
		ticket.Release()
		return uuid.Nil, err
	}
	return jobID, nil
}

func (r *Router) Verify(ctx context.Context, programID string, proof []byte) (uuid.UUID, error) {
	if len(proof) == 0 {
		return uuid.Nil, domain.Errorf(domain.KindInvalidInput, "verify", "proof is empty")
	}
	b, err := r.registry.Load().Resolve(programID)
	if err != nil {
		return uuid.Nil, err
	}
	return r.jobs.Submit(ctx, job.Task{
		Operation: domain.OperationVerify,
		ProgramID: programID,
		Timeout:   r.backends[b.Program.Backend].Timeout,
		Run: func(ctx context.Context) (*domain.JobResult, error) {
			res, err := b.Backend.Verify(ctx, b.Program, proof)
			if err != nil {
				return nil, domain.Classify("verify", err)
			}
			return &domain.JobResult{Verification: res}, nil
		},
	})
}

// Limiter exposes the proving limiter of a backend kind
func (r *Router) Limiter(kind domain.BackendKind) *limiter.Limiter {
	return r.limiters[kind]
}
