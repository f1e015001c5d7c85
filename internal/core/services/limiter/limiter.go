package limiter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"gitlab.com/zkboost.net/internal/domain"
)

// Limiter bounds concurrently running operations for one backend kind and
// the number of operations allowed to wait for a slot. Admission never blocks.
type Limiter struct {
	name    string
	admit   *semaphore.Weighted // running + queued
	slots   *semaphore.Weighted // running
	maxRun  int
	maxWait int

	running     atomic.Int64
	outstanding atomic.Int64
}

// New creates a limiter. maxConcurrent < 1 is treated as 1, queueDepth < 0 as 0.
func New(name string, maxConcurrent, queueDepth int) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	return &Limiter{
		name:    name,
		admit:   semaphore.NewWeighted(int64(maxConcurrent + queueDepth)),
		slots:   semaphore.NewWeighted(int64(maxConcurrent)),
		maxRun:  maxConcurrent,
		maxWait: queueDepth,
	}
}

// Admit reserves room for one operation or fails with Backpressure.
func (l *Limiter) Admit() (*Ticket, error) {
	if !l.admit.TryAcquire(1) {
		return nil, domain.Errorf(domain.KindBackpressure, "admit",
			"backend %s at capacity (%d running, %d queued)", l.name, l.maxRun, l.maxWait)
	}
	l.outstanding.Add(1)
	return &Ticket{l: l}, nil
}

// Running is the number of operations currently holding a run slot.
func (l *Limiter) Running() int {
	return int(l.running.Load())
}

// Outstanding is the number of admitted tickets, running or waiting.
func (l *Limiter) Outstanding() int {
	return int(l.outstanding.Load())
}

// Ticket is one admitted operation.
type Ticket struct {
	l       *Limiter
	mu      sync.Mutex
	running bool
	done    bool
}

// Wait blocks until a run slot is free or ctx ends.
func (t *Ticket) Wait(ctx context.Context) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return fmt.Errorf("ticket already released")
	}
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.l.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		t.l.slots.Release(1)
		return fmt.Errorf("ticket already released")
	}
	t.running = true
	t.l.running.Add(1)
	return nil
}

// Release frees the run slot (if held) and the admission. Idempotent.
func (t *Ticket) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	if t.running {
		t.l.running.Add(-1)
		t.l.slots.Release(1)
	}
	t.l.outstanding.Add(-1)
	t.l.admit.Release(1)
}
