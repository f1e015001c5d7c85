package memory

import (
	"context"
	"sort"
	"sync"

	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ secondary.WorkerRepository = (*WorkerStore)(nil)

// WorkerStore mirrors worker descriptors in process memory.
type WorkerStore struct {
	mu      sync.RWMutex
	workers map[string]domain.WorkerDescriptor
}

func NewWorkerStore() *WorkerStore {
	return &WorkerStore{workers: make(map[string]domain.WorkerDescriptor)}
}

func (s *WorkerStore) SaveWorker(_ context.Context, worker *domain.WorkerDescriptor) error {
	s.mu.Lock()
	s.workers[worker.ID] = *worker
	s.mu.Unlock()
	return nil
}

func (s *WorkerStore) RemoveWorker(_ context.Context, workerID string) error {
	s.mu.Lock()
	delete(s.workers, workerID)
	s.mu.Unlock()
	return nil
}

func (s *WorkerStore) GetAllWorkers(_ context.Context) ([]*domain.WorkerDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.WorkerDescriptor, 0, len(s.workers))
	for _, w := range s.workers {
		w := w
		out = append(out, &w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
