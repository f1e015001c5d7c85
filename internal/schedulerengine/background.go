package schedulerengine

import (
	"context"
	"sync"
	"time"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/services/job"
	"gitlab.com/zkboost.net/internal/core/services/worker"
)

const DefaultEvictInterval = time.Minute

// SchedulerEngine runs the periodic housekeeping of the service: worker
// health probes and eviction of expired jobs.
type SchedulerEngine struct {
	coordinator   worker.IWorkerCoordinator
	jobs          job.IJobManager
	logger        primary.Logger
	evictInterval time.Duration

	wg sync.WaitGroup
}

func NewSchedulerEngine(
	coordinator worker.IWorkerCoordinator,
	jobs job.IJobManager,
	logger primary.Logger,
	evictInterval time.Duration,
) *SchedulerEngine {
	if evictInterval <= 0 {
		evictInterval = DefaultEvictInterval
	}
	return &SchedulerEngine{
		coordinator:   coordinator,
		jobs:          jobs,
		logger:        logger,
		evictInterval: evictInterval,
	}
}

// Start launches the loops. They stop when ctx is cancelled; use Wait to join them.
func (s *SchedulerEngine) Start(ctx context.Context) {
	if s.coordinator != nil && s.coordinator.ProbeInterval() > 0 {
		s.wg.Add(1)
		go s.loop(ctx, s.coordinator.ProbeInterval(), s.probeWorkers)
	}
	if s.jobs != nil {
		s.wg.Add(1)
		go s.loop(ctx, s.evictInterval, s.evictJobs)
	}
	s.logger.Info("Scheduler engine started", "evictInterval", s.evictInterval)
}

func (s *SchedulerEngine) Wait() {
	s.wg.Wait()
}

func (s *SchedulerEngine) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (s *SchedulerEngine) probeWorkers(ctx context.Context) {
	s.coordinator.ProbeOnce(ctx)
}

func (s *SchedulerEngine) evictJobs(ctx context.Context) {
	if n := s.jobs.EvictExpired(ctx); n > 0 {
		s.logger.Debug("Evicted expired jobs", "count", n, "inFlight", s.jobs.InFlight())
	}
}
