package defs

import (
	"errors"
	"time"

	"gitlab.com/zkboost.net/internal/domain"
)

// Protocol data structures
type (
	// JobAssignData carries one assignment to a worker
	JobAssignData struct {
		AssignmentID string      `json:"assignment_id"`
		Attempt      int         `json:"attempt"`
		Task         domain.Task `json:"task"`
	}

	// JobCancelData asks a worker to abandon an assignment
	JobCancelData struct {
		AssignmentID string `json:"assignment_id"`
	}

	// JobResultData represents the data sent with job results
	JobResultData struct {
		AssignmentID string            `json:"assignment_id"`
		TaskID       string            `json:"task_id"`
		Success      bool              `json:"success"`
		Result       *domain.JobResult `json:"result,omitempty"`
		ErrorKind    domain.ErrorKind  `json:"error_kind,omitempty"`
		Error        string            `json:"error,omitempty"`
		ElapsedMs    int64             `json:"execution_time_ms"`
	}
)

func NewJobAssignData(a domain.Assignment) JobAssignData {
	return JobAssignData{AssignmentID: a.ID, Attempt: a.Attempt, Task: a.Task}
}

func (d JobAssignData) Assignment() domain.Assignment {
	return domain.Assignment{ID: d.AssignmentID, Attempt: d.Attempt, Task: d.Task}
}

// NewJobResultData builds the report for a finished assignment.
func NewJobResultData(a domain.Assignment, result *domain.JobResult, err error, elapsed time.Duration) JobResultData {
	data := JobResultData{
		AssignmentID: a.ID,
		TaskID:       a.Task.ID,
		ElapsedMs:    elapsed.Milliseconds(),
	}
	if err != nil {
		data.ErrorKind = domain.KindOf(err)
		data.Error = err.Error()
		return data
	}
	data.Success = true
	data.Result = result
	return data
}

// Outcome converts the report back into a classified outcome.
func (d JobResultData) Outcome() domain.TaskOutcome {
	out := domain.TaskOutcome{Elapsed: time.Duration(d.ElapsedMs) * time.Millisecond}
	if d.Success {
		out.Result = d.Result
		return out
	}
	kind := d.ErrorKind
	if kind == "" {
		kind = domain.KindEngineFault
	}
	out.Err = domain.NewError(kind, "worker", errors.New(d.Error))
	return out
}
