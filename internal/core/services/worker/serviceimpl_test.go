package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/zkboost.net/internal/adapter/logging"
	"gitlab.com/zkboost.net/internal/adapter/memory"
	"gitlab.com/zkboost.net/internal/adapter/metrics"
	"gitlab.com/zkboost.net/internal/domain"
)

const (
	modeReply  = "reply"
	modeFail   = "fail"
	modeSilent = "silent"
)

type sent struct {
	workerID   string
	assignment domain.Assignment
}

type fakeTransport struct {
	mu       sync.Mutex
	coord    *Coordinator
	modes    map[string]string
	outcomes map[string]domain.TaskOutcome
	sent     chan sent
	cancels  []string
	pings    []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		modes:    map[string]string{},
		outcomes: map[string]domain.TaskOutcome{},
		sent:     make(chan sent, 64),
	}
}

func (f *fakeTransport) set(workerID, mode string, outcome domain.TaskOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[workerID] = mode
	f.outcomes[workerID] = outcome
}

func (f *fakeTransport) Assign(_ context.Context, workerID string, a domain.Assignment) error {
	f.mu.Lock()
	mode, outcome := f.modes[workerID], f.outcomes[workerID]
	f.mu.Unlock()

	f.sent <- sent{workerID: workerID, assignment: a}
	switch mode {
	case modeFail:
		return errors.New("broken pipe")
	case modeReply:
		go f.coord.HandleResult(context.Background(), workerID, a.ID, outcome)
	}
	return nil
}

func (f *fakeTransport) CancelAssignment(_ context.Context, _ string, assignmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, assignmentID)
	return nil
}

func (f *fakeTransport) Ping(_ context.Context, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, workerID)
	return nil
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *fakeTransport, *memory.WorkerStore) {
	t.Helper()
	transport := newFakeTransport()
	store := memory.NewWorkerStore()
	c := NewCoordinator(transport, store, metrics.NoopRecorder{}, logging.NewNopLogger(), cfg)
	transport.coord = c
	t.Cleanup(c.Close)
	return c, transport, store
}

func register(t *testing.T, c *Coordinator, id string, capacity int) {
	t.Helper()
	require.NoError(t, c.Register(context.Background(), domain.WorkerDescriptor{
		ID: id, Address: "10.0.0.1:7000", Backend: "mock", Capacity: capacity,
	}))
}

func proofOutcome() domain.TaskOutcome {
	return domain.TaskOutcome{Result: &domain.JobResult{Proof: domain.NewProofResult([]byte("p"), time.Millisecond)}}
}

func task() domain.Task {
	return domain.Task{Operation: domain.OperationProve, ProgramID: "fibonacci", Input: []byte{10, 0, 0, 0}}
}

func health(c *Coordinator, id string) domain.WorkerHealth {
	for _, w := range c.Workers() {
		if w.ID == id {
			return w.Health
		}
	}
	return ""
}

func TestDispatch_NoHealthyWorker(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{})

	_, err := c.Dispatch(context.Background(), task())
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
}

func TestDispatch_Success(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{})
	register(t, c, "a", 2)
	transport.set("a", modeReply, proofOutcome())

	var observed []int
	ctx := domain.WithAssignmentObserver(context.Background(), func(_ string, attempt int) {
		observed = append(observed, attempt)
	})

	res, err := c.Dispatch(ctx, task())
	require.NoError(t, err)
	assert.Equal(t, []byte("p"), res.Proof.Proof)
	assert.Equal(t, []int{1}, observed)
	assert.Equal(t, 0, c.Workers()[0].CurrentLoad)
}

func TestDispatch_PicksLeastLoaded(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{})
	register(t, c, "a", 2)
	register(t, c, "b", 2)
	transport.set("a", modeSilent, domain.TaskOutcome{})
	transport.set("b", modeSilent, domain.TaskOutcome{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Dispatch(ctx, task())
		}()
		// wait for the assignment so load is visible to the next dispatch
		<-transport.sent
	}

	loads := map[string]int{}
	for _, w := range c.Workers() {
		loads[w.ID] = w.CurrentLoad
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, loads)

	cancel()
	wg.Wait()
	transport.mu.Lock()
	assert.Len(t, transport.cancels, 2)
	transport.mu.Unlock()
	for _, w := range c.Workers() {
		assert.Equal(t, 0, w.CurrentLoad)
	}
}

func TestDispatch_ReassignsAfterSendFailure(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{RetryCeiling: 2})
	register(t, c, "a", 1)
	register(t, c, "b", 1)
	transport.set("a", modeFail, domain.TaskOutcome{})
	transport.set("b", modeReply, proofOutcome())

	var owners []string
	ctx := domain.WithAssignmentObserver(context.Background(), func(workerID string, _ int) {
		owners = append(owners, workerID)
	})

	res, err := c.Dispatch(ctx, task())
	require.NoError(t, err)
	assert.NotNil(t, res.Proof)
	assert.Equal(t, []string{"a", "b"}, owners)
	assert.Equal(t, domain.WorkerUnreachable, health(c, "a"))
	assert.Equal(t, domain.WorkerHealthy, health(c, "b"))
}

func TestDispatch_StopsAtRetryCeiling(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{RetryCeiling: 2})
	for _, id := range []string{"a", "b", "c", "d"} {
		register(t, c, id, 1)
		transport.set(id, modeFail, domain.TaskOutcome{})
	}

	_, err := c.Dispatch(context.Background(), task())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineFault)
	assert.Len(t, transport.sent, 3)
}

func TestDispatch_WorkerLostMidTask(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{})
	register(t, c, "a", 1)
	transport.set("a", modeSilent, domain.TaskOutcome{})

	tk := task()
	tk.ID = "task-1"
	type result struct {
		res *domain.JobResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := c.Dispatch(context.Background(), tk)
		done <- result{res, err}
	}()

	first := <-transport.sent
	owner, ok := c.Owner("task-1")
	require.True(t, ok)
	assert.Equal(t, "a", owner)

	register(t, c, "b", 1)
	transport.set("b", modeReply, proofOutcome())
	c.WorkerLost(context.Background(), "a")

	second := <-transport.sent
	assert.Equal(t, "b", second.workerID)
	assert.Equal(t, 2, second.assignment.Attempt)

	r := <-done
	require.NoError(t, r.err)
	assert.NotNil(t, r.res.Proof)

	// the late report from the first owner is dropped
	assert.False(t, c.HandleResult(context.Background(), "a", first.assignment.ID, proofOutcome()))
	_, ok = c.Owner("task-1")
	assert.False(t, ok)
}

func TestDispatch_NonRetryableErrorIsNotReassigned(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{})
	register(t, c, "a", 1)
	register(t, c, "b", 1)
	bad := domain.TaskOutcome{Err: domain.Errorf(domain.KindInvalidInput, "prove", "bad input")}
	transport.set("a", modeReply, bad)
	transport.set("b", modeReply, bad)

	_, err := c.Dispatch(context.Background(), task())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Len(t, transport.sent, 1)
}

func TestDrain_ExcludesWorker(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{})
	register(t, c, "a", 1)
	transport.set("a", modeReply, proofOutcome())

	w, err := c.Drain(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerDraining, w.Health)

	_, err = c.Dispatch(context.Background(), task())
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)

	_, err = c.Drain(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegister_KeepsDrainingAcrossReconnect(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{})
	register(t, c, "a", 1)
	transport.set("a", modeReply, proofOutcome())

	_, err := c.Drain(context.Background(), "a")
	require.NoError(t, err)

	register(t, c, "a", 1)
	assert.Equal(t, domain.WorkerDraining, health(c, "a"))

	_, err = c.Dispatch(context.Background(), task())
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
	assert.Empty(t, transport.sent)
}

func TestProbeOnce_CancelsFailedOverAssignment(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{ProbeTimeout: time.Second})
	clock := time.Now()
	c.now = func() time.Time { return clock }

	register(t, c, "a", 1)
	transport.set("a", modeSilent, domain.TaskOutcome{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Dispatch(context.Background(), task())
		done <- err
	}()
	first := <-transport.sent
	require.Equal(t, "a", first.workerID)

	clock = clock.Add(2 * time.Second)
	register(t, c, "b", 1)
	transport.set("b", modeReply, proofOutcome())
	c.ProbeOnce(context.Background())

	second := <-transport.sent
	assert.Equal(t, "b", second.workerID)
	require.NoError(t, <-done)

	transport.mu.Lock()
	assert.Equal(t, []string{first.assignment.ID}, transport.cancels)
	transport.mu.Unlock()

	// a slow worker comes back with nothing left to run
	c.Seen(context.Background(), "a")
	assert.Equal(t, domain.WorkerHealthy, health(c, "a"))
	assert.False(t, c.HandleResult(context.Background(), "a", first.assignment.ID, proofOutcome()))
}

func TestProbeOnce_EvictsSilentIdleDrainingWorker(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{ProbeTimeout: time.Second, EvictAfter: time.Minute})
	clock := time.Now()
	c.now = func() time.Time { return clock }

	register(t, c, "a", 1)
	_, err := c.Drain(context.Background(), "a")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Second)
	c.ProbeOnce(context.Background())
	assert.Equal(t, domain.WorkerDraining, health(c, "a"))

	clock = clock.Add(2 * time.Minute)
	c.ProbeOnce(context.Background())
	assert.Empty(t, c.Workers())
}

func TestProbeOnce_HealthTransitions(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, Config{ProbeTimeout: time.Second, EvictAfter: time.Minute})
	clock := time.Now()
	c.now = func() time.Time { return clock }

	register(t, c, "a", 1)
	c.ProbeOnce(context.Background())
	assert.Equal(t, domain.WorkerHealthy, health(c, "a"))

	clock = clock.Add(2 * time.Second)
	c.ProbeOnce(context.Background())
	assert.Equal(t, domain.WorkerUnreachable, health(c, "a"))

	c.Seen(context.Background(), "a")
	assert.Equal(t, domain.WorkerHealthy, health(c, "a"))

	transport.mu.Lock()
	assert.Equal(t, []string{"a", "a"}, transport.pings)
	transport.mu.Unlock()

	clock = clock.Add(2 * time.Second)
	c.ProbeOnce(context.Background())
	clock = clock.Add(2 * time.Minute)
	c.ProbeOnce(context.Background())
	assert.Empty(t, c.Workers())
}

func TestRegister_ValidatesAndMirrors(t *testing.T) {
	c, _, store := newTestCoordinator(t, Config{})

	assert.ErrorIs(t, c.Register(context.Background(), domain.WorkerDescriptor{Capacity: 1}), domain.ErrInvalidInput)
	assert.ErrorIs(t, c.Register(context.Background(), domain.WorkerDescriptor{ID: "a"}), domain.ErrInvalidInput)

	register(t, c, "a", 3)
	require.NoError(t, c.Heartbeat(context.Background(), "a", 0))
	assert.ErrorIs(t, c.Heartbeat(context.Background(), "zzz", 0), domain.ErrNotFound)

	c.Close()
	mirrored, err := store.GetAllWorkers(context.Background())
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, 3, mirrored[0].Capacity)
	assert.Equal(t, domain.WorkerHealthy, mirrored[0].Health)
}

func TestClearStaleMirror_RemovesOnlyUnknownWorkers(t *testing.T) {
	c, _, store := newTestCoordinator(t, Config{})
	ctx := context.Background()
	require.NoError(t, store.SaveWorker(ctx, &domain.WorkerDescriptor{ID: "old", Capacity: 1}))
	register(t, c, "a", 1)
	require.NoError(t, store.SaveWorker(ctx, &domain.WorkerDescriptor{ID: "a", Capacity: 1}))

	removed, err := c.ClearStaleMirror(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	left, err := store.GetAllWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "a", left[0].ID)
}
