package secondary

import (
	"context"

	"gitlab.com/zkboost.net/internal/domain"
)

// WorkerRepository mirrors coordinator-owned worker descriptors for outside
// readers. The coordinator never reads its own state back from it.
type WorkerRepository interface {
	// SaveWorker saves worker information
	SaveWorker(ctx context.Context, worker *domain.WorkerDescriptor) error

	// RemoveWorker drops a worker that left the pool
	RemoveWorker(ctx context.Context, workerID string) error

	// GetAllWorkers lists the mirrored workers
	GetAllWorkers(ctx context.Context) ([]*domain.WorkerDescriptor, error)
}

// WorkerTransport reaches connected workers. Calls fail with an error when
// the worker's connection is gone or a write fails.
type WorkerTransport interface {
	// Assign ships an assignment to a worker
	Assign(ctx context.Context, workerID string, assignment domain.Assignment) error

	// CancelAssignment asks a worker to abort an assignment
	CancelAssignment(ctx context.Context, workerID, assignmentID string) error

	// Ping asks a worker to answer with a pong
	Ping(ctx context.Context, workerID string) error
}
