package job

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

// ErrAwaitTimeout is returned by AwaitResult together with the current
// non-terminal snapshot when the wait elapsed. The job keeps running.
var ErrAwaitTimeout = errors.New("job still in progress")

// Task is one unit of work handed to the manager.
type Task struct {
	Operation domain.Operation
	ProgramID string

	// Gate, when set, blocks until the task may start and returns a release
	// func called once the task ends. The job stays Pending while it blocks.
	Gate func(ctx context.Context) (release func(), err error)

	// Run performs the backend call. Errors are expected to be classified.
	Run func(ctx context.Context) (*domain.JobResult, error)

	// Timeout bounds Run. Zero means no ceiling.
	Timeout time.Duration
}

// IJobManager defines the interface for tracking jobs
type IJobManager interface {
	// Submit records a Pending job and starts it in the background
	Submit(ctx context.Context, task Task) (uuid.UUID, error)

	// GetStatus returns the current snapshot or a NotFound error
	GetStatus(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// AwaitResult blocks until the job is terminal or timeout elapses
	AwaitResult(ctx context.Context, jobID uuid.UUID, timeout time.Duration) (*domain.Job, error)

	// RegisterCallback pushes the terminal job to sink
	RegisterCallback(ctx context.Context, jobID uuid.UUID, sink secondary.ResultSink) error

	// Cancel requests cancellation and returns the resulting snapshot
	Cancel(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// EvictExpired drops archived terminal jobs older than the retention
	EvictExpired(ctx context.Context) int

	// InFlight counts non-terminal jobs
	InFlight() int
}
