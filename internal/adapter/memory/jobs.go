package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ secondary.JobRepository = (*JobArchive)(nil)

// JobArchive keeps terminal job snapshots in process memory. It is the
// default archive when no database is configured.
type JobArchive struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job
}

func NewJobArchive() *JobArchive {
	return &JobArchive{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (a *JobArchive) SaveJob(_ context.Context, job *domain.Job) error {
	cp := *job
	cp.History = append([]domain.JobState(nil), job.History...)

	a.mu.Lock()
	a.jobs[job.ID] = &cp
	a.mu.Unlock()
	return nil
}

func (a *JobArchive) GetJob(_ context.Context, jobID uuid.UUID) (*domain.Job, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	job, ok := a.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *job
	cp.History = append([]domain.JobState(nil), job.History...)
	return &cp, nil
}

// Len is the number of archived jobs
func (a *JobArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.jobs)
}
