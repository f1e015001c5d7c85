package secondary

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/domain"
)

// JobRepository archives terminal jobs so they stay queryable after eviction
// from the live arena.
type JobRepository interface {
	// SaveJob upserts a job snapshot
	SaveJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by ID, nil if unknown
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)
}

// ResultSink receives terminal jobs registered for push delivery. Delivery is
// at-least-once; receivers dedupe by job id.
type ResultSink interface {
	Deliver(ctx context.Context, job *domain.Job) error
}

// ResultSinkFactory builds a sink for a callback URL
type ResultSinkFactory interface {
	Sink(url string) ResultSink
}
