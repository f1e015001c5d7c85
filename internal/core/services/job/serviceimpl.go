package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ IJobManager = (*JobManager)(nil)

const (
	defaultRetention     = time.Hour
	defaultDeliveryQueue = 128
	defaultDeliverers    = 4
	deliveryTimeout      = time.Minute
	archiveTimeout       = 5 * time.Second
)

// Config tunes the manager. Zero values get defaults.
type Config struct {
	// Retention is how long terminal jobs stay in memory after completion.
	Retention time.Duration

	// DeliveryQueue is the capacity of the callback dispatch channel.
	DeliveryQueue int

	// Deliverers is the number of callback dispatch goroutines.
	Deliverers int
}

type delivery struct {
	sink secondary.ResultSink
	job  *domain.Job
}

// entry is the single mutable record of a live job. Every field is guarded
// by mu; state changes go through transition.
type entry struct {
	mu       sync.Mutex
	job      domain.Job
	done     chan struct{}
	cancel   context.CancelFunc
	sinks    []secondary.ResultSink
	archived bool
}

func (e *entry) snapshot() *domain.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *entry) snapshotLocked() *domain.Job {
	j := e.job
	j.History = append([]domain.JobState(nil), e.job.History...)
	return &j
}

// JobManager tracks jobs in an in-memory arena and archives terminal ones.
type JobManager struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entry

	archive secondary.JobRepository
	metrics secondary.MetricsRecorder
	logger  primary.Logger
	cfg     Config

	rootCtx    context.Context
	rootCancel context.CancelFunc
	runners    sync.WaitGroup
	deliveries chan delivery
	stopped    chan struct{}
	stopOnce   sync.Once
	deliverers sync.WaitGroup
}

// NewJobManager creates a manager and starts its callback dispatchers
func NewJobManager(
	archive secondary.JobRepository,
	metrics secondary.MetricsRecorder,
	logger primary.Logger,
	cfg Config,
) *JobManager {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.DeliveryQueue <= 0 {
		cfg.DeliveryQueue = defaultDeliveryQueue
	}
	if cfg.Deliverers <= 0 {
		cfg.Deliverers = defaultDeliverers
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &JobManager{
		jobs:       make(map[uuid.UUID]*entry),
		archive:    archive,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		rootCtx:    ctx,
		rootCancel: cancel,
		deliveries: make(chan delivery, cfg.DeliveryQueue),
		stopped:    make(chan struct{}),
	}

	for i := 0; i < cfg.Deliverers; i++ {
		m.deliverers.Add(1)
		go m.deliver()
	}
	return m
}

// Submit records a Pending job and starts it in the background
func (m *JobManager) Submit(ctx context.Context, task Task) (uuid.UUID, error) {
	if task.Run == nil {
		return uuid.Nil, domain.Errorf(domain.KindInvalidInput, "submit", "task has no run func")
	}
	select {
	case <-m.stopped:
		return uuid.Nil, domain.Errorf(domain.KindEngineUnavailable, "submit", "job manager is shutting down")
	default:
	}

	runCtx, cancel := context.WithCancel(m.rootCtx)
	e := &entry{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	m.mu.Lock()
	jobID := uuid.New()
	for _, taken := m.jobs[jobID]; taken; _, taken = m.jobs[jobID] {
		jobID = uuid.New()
	}
	e.job = domain.Job{
		ID:        jobID,
		ProgramID: task.ProgramID,
		Operation: task.Operation,
		State:     domain.JobStatePending,
		CreatedAt: time.Now(),
		History:   []domain.JobState{domain.JobStatePending},
	}
	m.jobs[jobID] = e
	m.mu.Unlock()

	m.logger.Debug("Job submitted",
		"jobId", jobID,
		"operation", task.Operation,
		"programId", task.ProgramID)

	m.runners.Add(1)
	go m.run(runCtx, e, task)

	return jobID, nil
}

func (m *JobManager) run(ctx context.Context, e *entry, task Task) {
	defer m.runners.Done()
	defer e.cancel()

	if task.Gate != nil {
		release, err := task.Gate(ctx)
		if err != nil {
			m.finish(e, nil, err, ctx.Err() != nil)
			return
		}
		defer release()
	}

	now := time.Now()
	if !m.transition(e, domain.JobStatePending, domain.JobStateRunning, func(j *domain.Job) {
		j.StartedAt = &now
	}) {
		return
	}

	m.metrics.JobStarted(task.Operation)
	defer m.metrics.JobFinished(task.Operation)

	runCtx := domain.WithAssignmentObserver(ctx, func(workerID string, attempt int) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.job.State.Terminal() {
			return
		}
		id := workerID
		e.job.WorkerID = &id
		e.job.Attempts = attempt
	})
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, task.Timeout)
		defer cancel()
	}

	result, err := task.Run(runCtx)
	m.finish(e, result, err, ctx.Err() != nil)
}

// transition moves e from one state to another. It is the only writer of
// e.job.State; false means another transition won.
func (m *JobManager) transition(e *entry, from, to domain.JobState, mutate func(*domain.Job)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.State != from {
		return false
	}
	e.job.State = to
	e.job.History = append(e.job.History, to)
	if mutate != nil {
		mutate(&e.job)
	}
	return true
}

// finish records the terminal outcome of a job that ran (or failed to start).
// aborted reports whether the job's own context was cancelled.
func (m *JobManager) finish(e *entry, result *domain.JobResult, err error, aborted bool) {
	e.mu.Lock()
	if e.job.State.Terminal() {
		e.mu.Unlock()
		return
	}

	now := time.Now()
	switch {
	case err == nil:
		e.job.State = domain.JobStateCompleted
		e.job.Result = result
	case e.job.CancelRequested && aborted:
		e.job.State = domain.JobStateCancelled
		e.job.Failure = &domain.JobFailure{Kind: domain.KindCancelled, Message: "cancelled while running"}
	default:
		e.job.State = domain.JobStateFailed
		e.job.Failure = &domain.JobFailure{Kind: domain.KindOf(err), Message: err.Error()}
	}
	e.job.CompletedAt = &now
	e.job.History = append(e.job.History, e.job.State)
	m.terminateLocked(e)
}

// terminateLocked closes out a job that just became terminal and unlocks e.
func (m *JobManager) terminateLocked(e *entry) {
	snap := e.snapshotLocked()
	sinks := e.sinks
	e.sinks = nil

	var d time.Duration
	if snap.StartedAt != nil {
		d = snap.CompletedAt.Sub(*snap.StartedAt)
	}
	// Recorded before waiters wake so a returned result is always counted.
	m.metrics.ObserveOperation(domain.OperationEvent{
		Operation: snap.Operation,
		ProgramID: snap.ProgramID,
		State:     snap.State,
		Duration:  d,
		Result:    snap.Result,
		Failure:   snap.Failure,
	})
	close(e.done)
	e.mu.Unlock()

	if snap.Failure != nil {
		m.logger.Info("Job finished",
			"jobId", snap.ID,
			"state", snap.State,
			"kind", snap.Failure.Kind,
			"reason", snap.Failure.Message)
	} else {
		m.logger.Info("Job finished", "jobId", snap.ID, "state", snap.State, "duration", d)
	}

	m.archiveJob(e, snap)
	for _, sink := range sinks {
		m.enqueue(delivery{sink: sink, job: snap})
	}
}

func (m *JobManager) archiveJob(e *entry, snap *domain.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := m.archive.SaveJob(ctx, snap); err != nil {
		m.logger.Error("Failed to archive job", "jobId", snap.ID, "error", err)
		return
	}
	e.mu.Lock()
	e.archived = true
	e.mu.Unlock()
}

// GetStatus returns the current snapshot or a NotFound error
func (m *JobManager) GetStatus(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	if e := m.lookup(jobID); e != nil {
		return e.snapshot(), nil
	}

	job, err := m.archive.GetJob(ctx, jobID)
	if err != nil {
		m.logger.Error("Failed to get archived job", "jobId", jobID, "error", err)
		return nil, domain.NewError(domain.KindEngineUnavailable, "get job", err)
	}
	if job == nil {
		return nil, domain.Errorf(domain.KindNotFound, "get job", "unknown job %s", jobID)
	}
	return job, nil
}

// AwaitResult blocks until the job is terminal, timeout elapses or ctx ends
func (m *JobManager) AwaitResult(ctx context.Context, jobID uuid.UUID, timeout time.Duration) (*domain.Job, error) {
	e := m.lookup(jobID)
	if e == nil {
		return m.GetStatus(ctx, jobID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.done:
		return e.snapshot(), nil
	case <-timer.C:
		return e.snapshot(), ErrAwaitTimeout
	case <-ctx.Done():
		return e.snapshot(), ctx.Err()
	}
}

// RegisterCallback pushes the terminal job to sink. Registering on a
// terminal job delivers right away.
func (m *JobManager) RegisterCallback(ctx context.Context, jobID uuid.UUID, sink secondary.ResultSink) error {
	e := m.lookup(jobID)
	if e == nil {
		job, err := m.GetStatus(ctx, jobID)
		if err != nil {
			return err
		}
		m.enqueue(delivery{sink: sink, job: job})
		return nil
	}

	e.mu.Lock()
	if !e.job.State.Terminal() {
		e.sinks = append(e.sinks, sink)
		e.mu.Unlock()
		return nil
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	m.enqueue(delivery{sink: sink, job: snap})
	return nil
}

// Cancel moves a Pending job to Cancelled or asks a Running one to abort.
// Cancelling a terminal job is a no-op.
func (m *JobManager) Cancel(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	e := m.lookup(jobID)
	if e == nil {
		return m.GetStatus(ctx, jobID)
	}

	e.mu.Lock()
	switch e.job.State {
	case domain.JobStatePending:
		now := time.Now()
		e.job.CancelRequested = true
		e.job.State = domain.JobStateCancelled
		e.job.Failure = &domain.JobFailure{Kind: domain.KindCancelled, Message: "cancelled before start"}
		e.job.CompletedAt = &now
		e.job.History = append(e.job.History, domain.JobStateCancelled)
		m.terminateLocked(e)
		e.cancel()
		m.logger.Info("Job cancelled", "jobId", jobID)
	case domain.JobStateRunning:
		e.job.CancelRequested = true
		e.mu.Unlock()
		e.cancel()
		m.logger.Info("Cancellation requested for running job", "jobId", jobID)
	default:
		e.mu.Unlock()
	}

	return e.snapshot(), nil
}

// EvictExpired drops archived terminal jobs past the retention window.
// Jobs whose archive write failed are retried and kept until it succeeds.
func (m *JobManager) EvictExpired(ctx context.Context) int {
	cutoff := time.Now().Add(-m.cfg.Retention)

	m.mu.RLock()
	var candidates []uuid.UUID
	for id, e := range m.jobs {
		e.mu.Lock()
		if e.job.State.Terminal() && e.job.CompletedAt != nil && e.job.CompletedAt.Before(cutoff) {
			candidates = append(candidates, id)
		}
		e.mu.Unlock()
	}
	m.mu.RUnlock()

	evicted := 0
	for _, id := range candidates {
		e := m.lookup(id)
		if e == nil {
			continue
		}
		e.mu.Lock()
		archived := e.archived
		e.mu.Unlock()
		if !archived {
			snap := e.snapshot()
			if err := m.archive.SaveJob(ctx, snap); err != nil {
				m.logger.Warn("Keeping unarchived job in memory", "jobId", id, "error", err)
				continue
			}
		}
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
		evicted++
	}

	if evicted > 0 {
		m.logger.Debug("Evicted terminal jobs", "count", evicted)
	}
	return evicted
}

// InFlight counts non-terminal jobs
func (m *JobManager) InFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.jobs {
		e.mu.Lock()
		if !e.job.State.Terminal() {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Shutdown cancels every live job and waits for runners and pending
// deliveries until ctx ends.
func (m *JobManager) Shutdown(ctx context.Context) error {
	m.rootCancel()

	done := make(chan struct{})
	go func() {
		m.runners.Wait()
		m.stopOnce.Do(func() { close(m.stopped) })
		m.deliverers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.stopOnce.Do(func() { close(m.stopped) })
		return fmt.Errorf("job manager shutdown: %w", ctx.Err())
	}
}

func (m *JobManager) lookup(jobID uuid.UUID) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[jobID]
}

func (m *JobManager) enqueue(d delivery) {
	select {
	case m.deliveries <- d:
		return
	default:
	}

	m.logger.Warn("Delivery queue full, waiting for a slot", "jobId", d.job.ID)
	go func() {
		select {
		case m.deliveries <- d:
		case <-m.stopped:
			m.logger.Error("Dropped callback during shutdown", "jobId", d.job.ID)
		}
	}()
}

func (m *JobManager) deliver() {
	defer m.deliverers.Done()
	for {
		select {
		case d := <-m.deliveries:
			m.push(d)
		case <-m.stopped:
			// drain what is already queued
			for {
				select {
				case d := <-m.deliveries:
					m.push(d)
				default:
					return
				}
			}
		}
	}
}

func (m *JobManager) push(d delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := d.sink.Deliver(ctx, d.job); err != nil {
		m.logger.Error("Failed to deliver job result", "jobId", d.job.ID, "error", err)
		return
	}
	m.logger.Debug("Delivered job result", "jobId", d.job.ID)
}
