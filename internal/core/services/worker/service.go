package worker

import (
	"context"
	"time"

	"gitlab.com/zkboost.net/internal/domain"
)

// IWorkerCoordinator owns the worker pool and dispatches tasks to it
type IWorkerCoordinator interface {
	// Register adds a worker or resets a reconnecting one
	Register(ctx context.Context, worker domain.WorkerDescriptor) error

	// Heartbeat records a sign of life with the worker's reported load
	Heartbeat(ctx context.Context, workerID string, load int) error

	// Seen records a pong
	Seen(ctx context.Context, workerID string)

	// WorkerLost handles a dropped connection
	WorkerLost(ctx context.Context, workerID string)

	// HandleResult routes a worker's report to the waiting dispatcher
	HandleResult(ctx context.Context, workerID, assignmentID string, outcome domain.TaskOutcome) bool

	// Dispatch runs a task on the pool, reassigning on worker failure
	Dispatch(ctx context.Context, task domain.Task) (*domain.JobResult, error)

	// Drain stops new assignments to a worker
	Drain(ctx context.Context, workerID string) (*domain.WorkerDescriptor, error)

	// ProbeOnce runs one health-check round
	ProbeOnce(ctx context.Context)

	// ProbeInterval is the configured probing period
	ProbeInterval() time.Duration

	// Workers lists the pool sorted by id
	Workers() []domain.WorkerDescriptor
}
