package jobrepository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/zkboost.net/internal/adapter/logging"
	"gitlab.com/zkboost.net/internal/domain"
)

func sampleJob() *domain.Job {
	started := time.Now().Add(-time.Second).UTC().Truncate(time.Microsecond)
	completed := started.Add(500 * time.Millisecond)
	worker := "worker-1"
	return &domain.Job{
		ID:          uuid.New(),
		ProgramID:   "fibonacci",
		Operation:   domain.OperationProve,
		State:       domain.JobStateCompleted,
		CreatedAt:   started.Add(-time.Millisecond),
		StartedAt:   &started,
		CompletedAt: &completed,
		Result: &domain.JobResult{
			Proof: domain.NewProofResult([]byte{0xde, 0xad}, 500*time.Millisecond),
		},
		WorkerID: &worker,
		Attempts: 2,
		History: []domain.JobState{
			domain.JobStatePending, domain.JobStateRunning, domain.JobStateCompleted,
		},
	}
}

func TestRowConversion_PreservesJob(t *testing.T) {
	job := sampleJob()

	row, err := toRow(job)
	require.NoError(t, err)
	assert.True(t, row.StartedAt.Valid)
	assert.Nil(t, row.Failure)

	back, err := fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, job, back)
}

func TestRowConversion_FailedJob(t *testing.T) {
	job := &domain.Job{
		ID:        uuid.New(),
		ProgramID: "fibonacci",
		Operation: domain.OperationExecute,
		State:     domain.JobStateFailed,
		Failure:   &domain.JobFailure{Kind: domain.KindTimeout, Message: "deadline"},
	}

	row, err := toRow(job)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(row.History))

	back, err := fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, domain.KindTimeout, back.Failure.Kind)
	assert.Nil(t, back.StartedAt)
	assert.Nil(t, back.WorkerID)
}

func TestJobRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	repo := NewJobRepository(db, logging.NewNopLogger())
	require.NoError(t, repo.EnsureSchema(ctx))

	job := sampleJob()
	require.NoError(t, repo.SaveJob(ctx, job))
	require.NoError(t, repo.SaveJob(ctx, job))

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.State, got.State)
	assert.Equal(t, job.History, got.History)
	assert.Equal(t, job.Result.Proof.Proof, got.Result.Proof.Proof)

	missing, err := repo.GetJob(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
