package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/zkboost.net/internal/adapter/logging"
	"gitlab.com/zkboost.net/internal/adapter/memory"
	"gitlab.com/zkboost.net/internal/adapter/metrics"
	"gitlab.com/zkboost.net/internal/domain"
)

func newTestManager(t *testing.T, cfg Config) (*JobManager, *memory.JobArchive) {
	t.Helper()
	archive := memory.NewJobArchive()
	m := NewJobManager(archive, metrics.NoopRecorder{}, logging.NewNopLogger(), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, archive
}

func proveTask(run func(ctx context.Context) (*domain.JobResult, error)) Task {
	return Task{Operation: domain.OperationProve, ProgramID: "fibonacci", Run: run}
}

func succeed(context.Context) (*domain.JobResult, error) {
	return &domain.JobResult{Proof: domain.NewProofResult([]byte{1, 2, 3}, time.Millisecond)}, nil
}

func blockUntilCancelled(ctx context.Context) (*domain.JobResult, error) {
	<-ctx.Done()
	return nil, domain.NewError(domain.KindOf(ctx.Err()), "prove", ctx.Err())
}

type chanSink struct{ ch chan *domain.Job }

func (s chanSink) Deliver(_ context.Context, job *domain.Job) error {
	s.ch <- job
	return nil
}

func waitTerminal(t *testing.T, m *JobManager, id uuid.UUID) *domain.Job {
	t.Helper()
	job, err := m.AwaitResult(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	require.True(t, job.State.Terminal())
	return job
}

func TestSubmit_CompletesWithHistory(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	id, err := m.Submit(context.Background(), proveTask(succeed))
	require.NoError(t, err)

	job := waitTerminal(t, m, id)
	assert.Equal(t, domain.JobStateCompleted, job.State)
	assert.Equal(t, []domain.JobState{
		domain.JobStatePending, domain.JobStateRunning, domain.JobStateCompleted,
	}, job.History)
	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.Proof.ProofSizeBytes)
	assert.Nil(t, job.Failure)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}

func TestSubmit_UniqueIDs(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	var mu sync.Mutex
	seen := map[uuid.UUID]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := m.Submit(context.Background(), proveTask(succeed))
			assert.NoError(t, err)
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestSubmit_FailureIsRecordedNotReinterpreted(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	id, err := m.Submit(context.Background(), proveTask(func(context.Context) (*domain.JobResult, error) {
		return nil, domain.Errorf(domain.KindArtifactNotFound, "prove", "missing elf")
	}))
	require.NoError(t, err)

	job := waitTerminal(t, m, id)
	assert.Equal(t, domain.JobStateFailed, job.State)
	require.NotNil(t, job.Failure)
	assert.Equal(t, domain.KindArtifactNotFound, job.Failure.Kind)
	assert.Contains(t, job.Failure.Message, "missing elf")
	assert.Nil(t, job.Result)
}

func TestSubmit_TimeoutFailsJob(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	task := proveTask(blockUntilCancelled)
	task.Timeout = 20 * time.Millisecond
	id, err := m.Submit(context.Background(), task)
	require.NoError(t, err)

	job := waitTerminal(t, m, id)
	assert.Equal(t, domain.JobStateFailed, job.State)
	assert.Equal(t, domain.KindTimeout, job.Failure.Kind)
}

func TestCancel_PendingJob(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	gateEntered := make(chan struct{})
	task := proveTask(succeed)
	task.Gate = func(ctx context.Context) (func(), error) {
		close(gateEntered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	id, err := m.Submit(context.Background(), task)
	require.NoError(t, err)
	<-gateEntered

	job, err := m.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCancelled, job.State)
	assert.True(t, job.CancelRequested)
	assert.Equal(t, []domain.JobState{domain.JobStatePending, domain.JobStateCancelled}, job.History)

	// cancelling again is a no-op
	again, err := m.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, job.History, again.History)
}

func TestCancel_RunningJobAborts(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	started := make(chan struct{})
	id, err := m.Submit(context.Background(), proveTask(func(ctx context.Context) (*domain.JobResult, error) {
		close(started)
		return blockUntilCancelled(ctx)
	}))
	require.NoError(t, err)
	<-started

	_, err = m.Cancel(context.Background(), id)
	require.NoError(t, err)

	job := waitTerminal(t, m, id)
	assert.Equal(t, domain.JobStateCancelled, job.State)
	assert.True(t, job.CancelRequested)
	assert.Equal(t, []domain.JobState{
		domain.JobStatePending, domain.JobStateRunning, domain.JobStateCancelled,
	}, job.History)
}

func TestCancel_RunningJobThatCompletesAnyway(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	started := make(chan struct{})
	proceed := make(chan struct{})
	id, err := m.Submit(context.Background(), proveTask(func(ctx context.Context) (*domain.JobResult, error) {
		close(started)
		<-proceed
		return succeed(ctx)
	}))
	require.NoError(t, err)
	<-started

	_, err = m.Cancel(context.Background(), id)
	require.NoError(t, err)
	close(proceed)

	job := waitTerminal(t, m, id)
	assert.Equal(t, domain.JobStateCompleted, job.State)
	assert.True(t, job.CancelRequested)
	assert.NotNil(t, job.Result)
	assert.Len(t, job.History, 3)
}

func TestAwaitResult_TimeoutLeavesJobRunning(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	release := make(chan struct{})
	id, err := m.Submit(context.Background(), proveTask(func(ctx context.Context) (*domain.JobResult, error) {
		<-release
		return succeed(ctx)
	}))
	require.NoError(t, err)

	job, err := m.AwaitResult(context.Background(), id, 20*time.Millisecond)
	assert.True(t, errors.Is(err, ErrAwaitTimeout))
	assert.False(t, job.State.Terminal())
	assert.Nil(t, job.Result)
	assert.Equal(t, 1, m.InFlight())

	close(release)
	job = waitTerminal(t, m, id)
	assert.Equal(t, domain.JobStateCompleted, job.State)
}

func TestRegisterCallback_BeforeAndAfterCompletion(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	sink := chanSink{ch: make(chan *domain.Job, 2)}

	release := make(chan struct{})
	id, err := m.Submit(context.Background(), proveTask(func(ctx context.Context) (*domain.JobResult, error) {
		<-release
		return succeed(ctx)
	}))
	require.NoError(t, err)
	require.NoError(t, m.RegisterCallback(context.Background(), id, sink))
	close(release)

	select {
	case job := <-sink.ch:
		assert.Equal(t, id, job.ID)
		assert.Equal(t, domain.JobStateCompleted, job.State)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not delivered")
	}

	require.NoError(t, m.RegisterCallback(context.Background(), id, sink))
	select {
	case job := <-sink.ch:
		assert.Equal(t, id, job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("late callback not delivered")
	}
}

func TestAssignmentObserver_RecordsOwner(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	id, err := m.Submit(context.Background(), proveTask(func(ctx context.Context) (*domain.JobResult, error) {
		observe := domain.AssignmentObserverFrom(ctx)
		observe("worker-a", 1)
		observe("worker-b", 2)
		return succeed(ctx)
	}))
	require.NoError(t, err)

	job := waitTerminal(t, m, id)
	require.NotNil(t, job.WorkerID)
	assert.Equal(t, "worker-b", *job.WorkerID)
	assert.Equal(t, 2, job.Attempts)
}

func TestEvictExpired_FallsBackToArchive(t *testing.T) {
	m, archive := newTestManager(t, Config{Retention: time.Millisecond})

	id, err := m.Submit(context.Background(), proveTask(succeed))
	require.NoError(t, err)
	waitTerminal(t, m, id)

	require.Eventually(t, func() bool {
		return m.EvictExpired(context.Background()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, m.lookup(id))
	assert.Equal(t, 1, archive.Len())

	job, err := m.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCompleted, job.State)
}

func TestGetStatus_UnknownJob(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	_, err := m.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = m.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
