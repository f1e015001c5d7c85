package domain

import (
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of work a job performs
type Operation string

const (
	OperationExecute Operation = "execute"
	OperationProve   Operation = "prove"
	OperationVerify  Operation = "verify"
)

// JobState represents the lifecycle state of a job
type JobState string

const (
	JobStatePending   JobState = "PENDING"
	JobStateRunning   JobState = "RUNNING"
	JobStateCompleted JobState = "COMPLETED"
	JobStateFailed    JobState = "FAILED"
	JobStateCancelled JobState = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// JobResult holds the operation-specific payload of a completed job.
// Exactly one field is set.
type JobResult struct {
	Execution    *ExecutionResult    `json:"execution,omitempty"`
	Proof        *ProofResult        `json:"proof,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
}

// JobFailure is the structured reason of a failed job.
type JobFailure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Job is an immutable snapshot of a tracked job
type Job struct {
	ID              uuid.UUID   `json:"job_id" db:"id"`
	ProgramID       string      `json:"program_id" db:"program_id"`
	Operation       Operation   `json:"operation" db:"operation"`
	State           JobState    `json:"state" db:"state"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	StartedAt       *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	Result          *JobResult  `json:"result,omitempty" db:"-"`
	Failure         *JobFailure `json:"failure,omitempty" db:"-"`
	CancelRequested bool        `json:"cancel_requested" db:"cancel_requested"`
	WorkerID        *string     `json:"worker_id,omitempty" db:"worker_id"`
	Attempts        int         `json:"attempts" db:"attempts"`
	History         []JobState  `json:"history" db:"-"`
}

type JobTable struct {
	ID              string
	ProgramID       string
	Operation       string
	State           string
	CreatedAt       string
	StartedAt       string
	CompletedAt     string
	Result          string
	Failure         string
	CancelRequested string
	WorkerID        string
	Attempts        string
	History         string
}

func GetJobTable() JobTable {
	return JobTable{
		ID:              "id",
		ProgramID:       "program_id",
		Operation:       "operation",
		State:           "state",
		CreatedAt:       "created_at",
		StartedAt:       "started_at",
		CompletedAt:     "completed_at",
		Result:          "result",
		Failure:         "failure",
		CancelRequested: "cancel_requested",
		WorkerID:        "worker_id",
		Attempts:        "attempts",
		History:         "history",
	}
}

func (JobTable) TableName() string {
	return "jobs"
}

// OperationEvent is emitted to the metrics recorder when a job terminates.
type OperationEvent struct {
	Operation Operation
	ProgramID string
	State     JobState
	Duration  time.Duration
	Result    *JobResult
	Failure   *JobFailure
}
