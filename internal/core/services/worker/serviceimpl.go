package worker

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ IWorkerCoordinator = (*Coordinator)(nil)

const (
	DefaultRetryCeiling  = 2
	DefaultProbeInterval = 5 * time.Second
	DefaultProbeTimeout  = 15 * time.Second
	DefaultEvictAfter    = 5 * time.Minute

	mirrorQueue   = 256
	mirrorTimeout = 2 * time.Second
)

// Config tunes the coordinator. Zero values get defaults; a negative
// RetryCeiling disables reassignment.
type Config struct {
	RetryCeiling  int
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	EvictAfter    time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryCeiling == 0 {
		c.RetryCeiling = DefaultRetryCeiling
	}
	if c.RetryCeiling < 0 {
		c.RetryCeiling = 0
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.EvictAfter <= 0 {
		c.EvictAfter = DefaultEvictAfter
	}
	return c
}

type workerState struct {
	desc             domain.WorkerDescriptor
	load             atomic.Int32
	unreachableSince time.Time
}

func (w *workerState) snapshot() domain.WorkerDescriptor {
	d := w.desc
	d.CurrentLoad = int(w.load.Load())
	return d
}

func (w *workerState) spare() bool {
	return int(w.load.Load()) < w.desc.Capacity
}

// abandoned is an assignment failed over while its worker may still run it.
type abandoned struct {
	workerID     string
	assignmentID string
}

type pendingAssignment struct {
	workerID string
	taskID   string
	result   chan domain.TaskOutcome
}

type mirrorOp struct {
	worker domain.WorkerDescriptor
	remove bool
}

// Coordinator assigns tasks to remote workers. All pool and ownership
// state is guarded by mu; load counters are atomics read without it.
type Coordinator struct {
	mu      sync.Mutex
	workers map[string]*workerState
	pending map[string]*pendingAssignment // assignment id -> waiter
	owners  map[string]string             // task id -> current assignment id

	transport secondary.WorkerTransport
	repo      secondary.WorkerRepository
	metrics   secondary.MetricsRecorder
	logger    primary.Logger
	cfg       Config
	now       func() time.Time

	mirrorMu   sync.RWMutex
	mirror     chan mirrorOp
	mirrorDone chan struct{}
	closed     bool
}

// NewCoordinator creates a coordinator and starts mirroring to repo
func NewCoordinator(
	transport secondary.WorkerTransport,
	repo secondary.WorkerRepository,
	metrics secondary.MetricsRecorder,
	logger primary.Logger,
	cfg Config,
) *Coordinator {
	c := &Coordinator{
		workers:    make(map[string]*workerState),
		pending:    make(map[string]*pendingAssignment),
		owners:     make(map[string]string),
		transport:  transport,
		repo:       repo,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
		mirror:     make(chan mirrorOp, mirrorQueue),
		mirrorDone: make(chan struct{}),
	}
	go c.mirrorLoop()
	return c
}

// Close stops the repository mirror
func (c *Coordinator) Close() {
	c.mirrorMu.Lock()
	if c.closed {
		c.mirrorMu.Unlock()
		return
	}
	c.closed = true
	close(c.mirror)
	c.mirrorMu.Unlock()
	<-c.mirrorDone
}

// ClearStaleMirror drops descriptors left in the repository by a previous
// process. Call it before workers connect.
func (c *Coordinator) ClearStaleMirror(ctx context.Context) (int, error) {
	stale, err := c.repo.GetAllWorkers(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, w := range stale {
		c.mu.Lock()
		_, live := c.workers[w.ID]
		c.mu.Unlock()
		if live {
			continue
		}
		if err := c.repo.RemoveWorker(ctx, w.ID); err != nil {
			return removed, err
		}
		c.logger.Debug("Removed stale worker mirror entry", "workerId", w.ID, "lastSeen", w.LastSeen)
		removed++
	}
	return removed, nil
}

func (c *Coordinator) ProbeInterval() time.Duration {
	return c.cfg.ProbeInterval
}

// Register adds a worker or resets a reconnecting one
func (c *Coordinator) Register(ctx context.Context, worker domain.WorkerDescriptor) error {
	if worker.ID == "" {
		return domain.Errorf(domain.KindInvalidInput, "register", "worker id is required")
	}
	if worker.Capacity <= 0 {
		return domain.Errorf(domain.KindInvalidInput, "register", "worker %s: capacity must be positive", worker.ID)
	}

	c.mu.Lock()
	worker.Health = domain.WorkerHealthy
	if prev, exists := c.workers[worker.ID]; exists {
		// The old session is gone and took its assignments with it.
		c.logger.Warn("Worker re-registered, abandoning its previous assignments", "workerId", worker.ID)
		c.failAssignmentsLocked(worker.ID)
		if prev.desc.Health == domain.WorkerDraining {
			worker.Health = domain.WorkerDraining
		}
	}
	now := c.now()
	worker.RegisteredAt = now
	worker.LastSeen = now
	worker.CurrentLoad = 0
	state := &workerState{desc: worker}
	c.workers[worker.ID] = state
	snap := state.snapshot()
	c.mu.Unlock()

	c.logger.Info("Worker registered",
		"workerId", worker.ID,
		"address", worker.Address,
		"backend", worker.Backend,
		"capacity", worker.Capacity)
	c.persist(snap)
	return nil
}

// Heartbeat records a sign of life. Load is owned by the coordinator, the
// reported value is only logged.
func (c *Coordinator) Heartbeat(ctx context.Context, workerID string, load int) error {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	if !ok {
		c.mu.Unlock()
		return domain.Errorf(domain.KindNotFound, "heartbeat", "unknown worker %s", workerID)
	}
	c.touchLocked(w)
	tracked := w.load.Load()
	snap := w.snapshot()
	c.mu.Unlock()

	c.logger.Debug("Worker heartbeat", "workerId", workerID, "reportedLoad", load, "trackedLoad", tracked)
	c.persist(snap)
	return nil
}

// Seen records a pong
func (c *Coordinator) Seen(ctx context.Context, workerID string) {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	if !ok {
		c.mu.Unlock()
		return
	}
	changed := c.touchLocked(w)
	snap := w.snapshot()
	c.mu.Unlock()

	if changed {
		c.persist(snap)
	}
}

// touchLocked refreshes LastSeen and revives an unreachable worker.
func (c *Coordinator) touchLocked(w *workerState) bool {
	w.desc.LastSeen = c.now()
	if w.desc.Health == domain.WorkerUnreachable {
		w.desc.Health = domain.WorkerHealthy
		w.unreachableSince = time.Time{}
		c.logger.Info("Worker healthy again", "workerId", w.desc.ID)
		return true
	}
	return false
}

// WorkerLost handles a dropped connection
func (c *Coordinator) WorkerLost(ctx context.Context, workerID string) {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	if !ok {
		c.mu.Unlock()
		return
	}
	lost := c.markUnreachableLocked(w, "connection lost")
	snap := w.snapshot()
	c.mu.Unlock()

	c.cancelAbandoned(lost)
	c.persist(snap)
}

func (c *Coordinator) markUnreachableLocked(w *workerState, reason string) []abandoned {
	if w.desc.Health != domain.WorkerUnreachable {
		w.desc.Health = domain.WorkerUnreachable
		w.unreachableSince = c.now()
		c.logger.Warn("Worker unreachable", "workerId", w.desc.ID, "reason", reason)
	}
	return c.failAssignmentsLocked(w.desc.ID)
}

// failAssignmentsLocked wakes every dispatcher waiting on workerID with a
// retryable error and returns the assignments taken away from it. The
// caller must cancel them once mu is released.
func (c *Coordinator) failAssignmentsLocked(workerID string) []abandoned {
	var out []abandoned
	for id, p := range c.pending {
		if p.workerID != workerID {
			continue
		}
		c.completeLocked(id, domain.TaskOutcome{
			Err: domain.Errorf(domain.KindEngineUnavailable, "dispatch", "worker %s lost", workerID),
		})
		out = append(out, abandoned{workerID: workerID, assignmentID: id})
	}
	return out
}

// cancelAbandoned tells workers to stop assignments that were failed over.
func (c *Coordinator) cancelAbandoned(list []abandoned) {
	for _, a := range list {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		if err := c.transport.CancelAssignment(ctx, a.workerID, a.assignmentID); err != nil {
			c.logger.Debug("Failed to cancel assignment", "workerId", a.workerID, "assignmentId", a.assignmentID, "error", err)
		}
		cancel()
	}
}

// completeLocked hands outcome to the waiter of assignmentID if it still owns
// its task. It reports false for stale or unknown assignments.
func (c *Coordinator) completeLocked(assignmentID string, outcome domain.TaskOutcome) bool {
	p, ok := c.pending[assignmentID]
	if !ok {
		return false
	}
	delete(c.pending, assignmentID)
	if w, ok := c.workers[p.workerID]; ok {
		w.load.Add(-1)
	}
	if c.owners[p.taskID] != assignmentID {
		return false
	}
	p.result <- outcome
	return true
}

// HandleResult routes a worker's report to the waiting dispatcher. Reports
// for assignments the worker no longer owns are dropped.
func (c *Coordinator) HandleResult(ctx context.Context, workerID, assignmentID string, outcome domain.TaskOutcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[assignmentID]
	if !ok || p.workerID != workerID {
		c.logger.Warn("Dropping stale task result", "workerId", workerID, "assignmentId", assignmentID)
		return false
	}
	if w, ok := c.workers[workerID]; ok {
		w.desc.LastSeen = c.now()
	}
	return c.completeLocked(assignmentID, outcome)
}

// Dispatch runs task on the least-loaded healthy worker. A retryable
// failure moves the task to another worker, at most RetryCeiling times.
func (c *Coordinator) Dispatch(ctx context.Context, task domain.Task) (*domain.JobResult, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	defer c.clearOwner(task.ID)

	observe := domain.AssignmentObserverFrom(ctx)
	tried := make(map[string]bool)
	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryCeiling+1; attempt++ {
		a, p, ok := c.assign(task, attempt, tried)
		if !ok {
			if attempt == 1 {
				return nil, domain.Errorf(domain.KindEngineUnavailable, "dispatch", "no healthy worker with spare capacity")
			}
			break
		}
		if attempt > 1 {
			c.metrics.WorkerReassigned()
			c.logger.Info("Reassigning task", "taskId", task.ID, "workerId", p.workerID, "attempt", attempt)
		}
		observe(p.workerID, attempt)

		result, err := c.run(ctx, a, p)
		if err == nil {
			return result, nil
		}
		if !domain.Retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		tried[p.workerID] = true
		lastErr = err
	}

	return nil, domain.Errorf(domain.KindEngineFault, "dispatch",
		"task %s failed after %d attempts: %v", task.ID, len(tried), lastErr)
}

func (c *Coordinator) clearOwner(taskID string) {
	c.mu.Lock()
	delete(c.owners, taskID)
	c.mu.Unlock()
}

// assign picks a worker and makes the new assignment the task's only owner.
func (c *Coordinator) assign(task domain.Task, attempt int, exclude map[string]bool) (domain.Assignment, *pendingAssignment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best *workerState
	for id, w := range c.workers {
		if exclude[id] || w.desc.Health != domain.WorkerHealthy || !w.spare() {
			continue
		}
		if best == nil {
			best = w
			continue
		}
		r, br := w.snapshot().LoadRatio(), best.snapshot().LoadRatio()
		if r < br || (r == br && id < best.desc.ID) {
			best = w
		}
	}
	if best == nil {
		return domain.Assignment{}, nil, false
	}

	a := domain.Assignment{ID: uuid.NewString(), Attempt: attempt, Task: task}
	p := &pendingAssignment{
		workerID: best.desc.ID,
		taskID:   task.ID,
		result:   make(chan domain.TaskOutcome, 1),
	}
	c.pending[a.ID] = p
	c.owners[task.ID] = a.ID
	best.load.Add(1)
	return a, p, true
}

func (c *Coordinator) run(ctx context.Context, a domain.Assignment, p *pendingAssignment) (*domain.JobResult, error) {
	if err := c.transport.Assign(ctx, p.workerID, a); err != nil {
		var lost []abandoned
		c.mu.Lock()
		c.completeLocked(a.ID, domain.TaskOutcome{})
		if w, ok := c.workers[p.workerID]; ok {
			lost = c.markUnreachableLocked(w, "dispatch failed: "+err.Error())
		}
		c.mu.Unlock()
		c.cancelAbandoned(lost)
		c.persistWorker(p.workerID)
		return nil, domain.Errorf(domain.KindEngineUnavailable, "dispatch", "send to worker %s: %v", p.workerID, err)
	}

	select {
	case outcome := <-p.result:
		c.persistWorker(p.workerID)
		if outcome.Err != nil {
			return nil, domain.Classify("dispatch", outcome.Err)
		}
		if outcome.Result == nil {
			return nil, domain.Errorf(domain.KindEngineFault, "dispatch", "worker %s reported no result", p.workerID)
		}
		return outcome.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		abandonedByCaller := c.completeLocked(a.ID, domain.TaskOutcome{Err: ctx.Err()})
		c.mu.Unlock()
		if abandonedByCaller {
			c.cancelAbandoned([]abandoned{{workerID: p.workerID, assignmentID: a.ID}})
		}
		return nil, domain.Classify("dispatch", ctx.Err())
	}
}

// Drain stops new assignments to a worker; in-flight ones finish.
func (c *Coordinator) Drain(ctx context.Context, workerID string) (*domain.WorkerDescriptor, error) {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	if !ok {
		c.mu.Unlock()
		return nil, domain.Errorf(domain.KindNotFound, "drain", "unknown worker %s", workerID)
	}
	w.desc.Health = domain.WorkerDraining
	snap := w.snapshot()
	c.mu.Unlock()

	c.logger.Info("Worker draining", "workerId", workerID, "inFlight", snap.CurrentLoad)
	c.persist(snap)
	return &snap, nil
}

// ProbeOnce marks silent workers unreachable, evicts long-dead ones and
// pings the rest.
func (c *Coordinator) ProbeOnce(ctx context.Context) {
	now := c.now()
	var ping []string
	var changed []domain.WorkerDescriptor
	var evicted []string
	var lost []abandoned

	c.mu.Lock()
	for id, w := range c.workers {
		silent := now.Sub(w.desc.LastSeen)
		switch w.desc.Health {
		case domain.WorkerUnreachable:
			if now.Sub(w.unreachableSince) > c.cfg.EvictAfter && w.load.Load() == 0 {
				delete(c.workers, id)
				evicted = append(evicted, id)
				continue
			}
		case domain.WorkerHealthy:
			if silent > c.cfg.ProbeTimeout {
				lost = append(lost, c.markUnreachableLocked(w, "probe timeout")...)
				changed = append(changed, w.snapshot())
			}
		case domain.WorkerDraining:
			// Draining survives silence; idle ones are dropped after the eviction window.
			if silent > c.cfg.ProbeTimeout {
				lost = append(lost, c.failAssignmentsLocked(id)...)
			}
			if silent > c.cfg.ProbeTimeout+c.cfg.EvictAfter && w.load.Load() == 0 {
				delete(c.workers, id)
				evicted = append(evicted, id)
				continue
			}
		}
		ping = append(ping, id)
	}
	c.mu.Unlock()

	c.cancelAbandoned(lost)

	for _, snap := range changed {
		c.persist(snap)
	}
	for _, id := range evicted {
		c.logger.Info("Evicting dead worker", "workerId", id)
		c.enqueueMirror(mirrorOp{worker: domain.WorkerDescriptor{ID: id}, remove: true})
	}
	for _, id := range ping {
		if err := c.transport.Ping(ctx, id); err != nil {
			c.logger.Debug("Ping failed", "workerId", id, "error", err)
		}
	}
}

// Workers lists the pool sorted by id
func (c *Coordinator) Workers() []domain.WorkerDescriptor {
	c.mu.Lock()
	out := make([]domain.WorkerDescriptor, 0, len(c.workers))
	for _, w := range c.workers {
		out = append(out, w.snapshot())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Owner returns the worker currently owning a task, if any.
func (c *Coordinator) Owner(taskID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.owners[taskID]
	if !ok {
		return "", false
	}
	p, ok := c.pending[a]
	if !ok {
		return "", false
	}
	return p.workerID, true
}

func (c *Coordinator) persistWorker(workerID string) {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	var snap domain.WorkerDescriptor
	if ok {
		snap = w.snapshot()
	}
	c.mu.Unlock()
	if ok {
		c.persist(snap)
	}
}

func (c *Coordinator) persist(w domain.WorkerDescriptor) {
	c.enqueueMirror(mirrorOp{worker: w})
}

func (c *Coordinator) enqueueMirror(op mirrorOp) {
	c.mirrorMu.RLock()
	defer c.mirrorMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.mirror <- op:
	default:
		c.logger.Warn("Worker mirror queue full, dropping update", "workerId", op.worker.ID)
	}
}

func (c *Coordinator) mirrorLoop() {
	defer close(c.mirrorDone)
	for op := range c.mirror {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		var err error
		if op.remove {
			err = c.repo.RemoveWorker(ctx, op.worker.ID)
		} else {
			w := op.worker
			err = c.repo.SaveWorker(ctx, &w)
		}
		cancel()
		if err != nil {
			c.logger.Warn("Failed to mirror worker", "workerId", op.worker.ID, "error", err)
		}
	}
}
