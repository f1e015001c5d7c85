// package jobrepository archives terminal jobs in PostgreSQL
package jobrepository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
	querybuilder "gitlab.com/zkboost.net/internal/utils"
)

var _ secondary.JobRepository = (*JobRepository)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id               UUID PRIMARY KEY,
	program_id       TEXT        NOT NULL,
	operation        TEXT        NOT NULL,
	state            TEXT        NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	result           JSONB,
	failure          JSONB,
	cancel_requested BOOLEAN     NOT NULL DEFAULT FALSE,
	worker_id        TEXT,
	attempts         INTEGER     NOT NULL DEFAULT 0,
	history          JSONB       NOT NULL DEFAULT '[]'
)`

// jobRow is the storage shape of domain.Job
type jobRow struct {
	ID              uuid.UUID      `db:"id"`
	ProgramID       string         `db:"program_id"`
	Operation       string         `db:"operation"`
	State           string         `db:"state"`
	CreatedAt       time.Time      `db:"created_at"`
	StartedAt       sql.NullTime   `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	Result          []byte         `db:"result"`
	Failure         []byte         `db:"failure"`
	CancelRequested bool           `db:"cancel_requested"`
	WorkerID        sql.NullString `db:"worker_id"`
	Attempts        int            `db:"attempts"`
	History         []byte         `db:"history"`
}

// JobRepository implements the JobRepository interface with PostgreSQL
type JobRepository struct {
	db     *sqlx.DB
	logger primary.Logger
}

// NewJobRepository creates a new PostgreSQL job repository
func NewJobRepository(db *sqlx.DB, logger primary.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the jobs table when missing
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}
	return nil
}

// SaveJob upserts a job snapshot
func (r *JobRepository) SaveJob(ctx context.Context, job *domain.Job) error {
	row, err := toRow(job)
	if err != nil {
		r.logger.Error("Failed to encode job", "jobId", job.ID, "error", err)
		return err
	}

	tbl := domain.GetJobTable()
	query, args, err := querybuilder.NewQueryBuilder("").
		Insert(
			tbl.ID,
			tbl.ProgramID,
			tbl.Operation,
			tbl.State,
			tbl.CreatedAt,
			tbl.StartedAt,
			tbl.CompletedAt,
			tbl.Result,
			tbl.Failure,
			tbl.CancelRequested,
			tbl.WorkerID,
			tbl.Attempts,
			tbl.History,
		).
		Into(tbl.TableName()).
		Values(
			row.ID,
			row.ProgramID,
			row.Operation,
			row.State,
			row.CreatedAt,
			row.StartedAt,
			row.CompletedAt,
			row.Result,
			row.Failure,
			row.CancelRequested,
			row.WorkerID,
			row.Attempts,
			row.History,
		).
		OnConflict(tbl.ID).
		SetExclude(
			tbl.State,
			tbl.StartedAt,
			tbl.CompletedAt,
			tbl.Result,
			tbl.Failure,
			tbl.CancelRequested,
			tbl.WorkerID,
			tbl.Attempts,
			tbl.History,
		).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build job upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to save job", "jobId", job.ID, "error", err)
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID, nil if unknown
func (r *JobRepository) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	tbl := domain.GetJobTable()
	query, args, err := querybuilder.NewQueryBuilder("").
		Select(
			tbl.ID,
			tbl.ProgramID,
			tbl.Operation,
			tbl.State,
			tbl.CreatedAt,
			tbl.StartedAt,
			tbl.CompletedAt,
			tbl.Result,
			tbl.Failure,
			tbl.CancelRequested,
			tbl.WorkerID,
			tbl.Attempts,
			tbl.History,
		).
		From(tbl.TableName()).
		Where(tbl.ID+" = ?", jobID).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build job query: %w", err)
	}

	var row jobRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get job", "jobId", jobID, "error", err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return fromRow(&row)
}

func toRow(job *domain.Job) (*jobRow, error) {
	row := &jobRow{
		ID:              job.ID,
		ProgramID:       job.ProgramID,
		Operation:       string(job.Operation),
		State:           string(job.State),
		CreatedAt:       job.CreatedAt,
		CancelRequested: job.CancelRequested,
		Attempts:        job.Attempts,
	}
	if job.StartedAt != nil {
		row.StartedAt = sql.NullTime{Time: *job.StartedAt, Valid: true}
	}
	if job.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}
	if job.WorkerID != nil {
		row.WorkerID = sql.NullString{String: *job.WorkerID, Valid: true}
	}

	var err error
	if job.Result != nil {
		if row.Result, err = json.Marshal(job.Result); err != nil {
			return nil, fmt.Errorf("failed to marshal job result: %w", err)
		}
	}
	if job.Failure != nil {
		if row.Failure, err = json.Marshal(job.Failure); err != nil {
			return nil, fmt.Errorf("failed to marshal job failure: %w", err)
		}
	}
	history := job.History
	if history == nil {
		history = []domain.JobState{}
	}
	if row.History, err = json.Marshal(history); err != nil {
		return nil, fmt.Errorf("failed to marshal job history: %w", err)
	}
	return row, nil
}

func fromRow(row *jobRow) (*domain.Job, error) {
	job := &domain.Job{
		ID:              row.ID,
		ProgramID:       row.ProgramID,
		Operation:       domain.Operation(row.Operation),
		State:           domain.JobState(row.State),
		CreatedAt:       row.CreatedAt,
		CancelRequested: row.CancelRequested,
		Attempts:        row.Attempts,
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		job.StartedAt = &t
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		job.CompletedAt = &t
	}
	if row.WorkerID.Valid {
		id := row.WorkerID.String
		job.WorkerID = &id
	}
	if len(row.Result) > 0 {
		job.Result = &domain.JobResult{}
		if err := json.Unmarshal(row.Result, job.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
	}
	if len(row.Failure) > 0 {
		job.Failure = &domain.JobFailure{}
		if err := json.Unmarshal(row.Failure, job.Failure); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job failure: %w", err)
		}
	}
	if len(row.History) > 0 {
		if err := json.Unmarshal(row.History, &job.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job history: %w", err)
		}
	}
	return job, nil
}
