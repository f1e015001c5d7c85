package domain

import "time"

// WorkerHealth is the coordinator's view of a remote worker
type WorkerHealth string

const (
	WorkerHealthy     WorkerHealth = "HEALTHY"
	WorkerUnreachable WorkerHealth = "UNREACHABLE"
	WorkerDraining    WorkerHealth = "DRAINING"
)

// WorkerDescriptor represents information about a worker
type WorkerDescriptor struct {
	ID           string       `json:"id" redis:"id"`
	Address      string       `json:"address" redis:"address"`
	Backend      string       `json:"backend" redis:"backend"`
	Capacity     int          `json:"capacity" redis:"capacity"`
	CurrentLoad  int          `json:"current_load" redis:"current_load"`
	Health       WorkerHealth `json:"health" redis:"health"`
	RegisteredAt time.Time    `json:"registered_at" redis:"registered_at"`
	LastSeen     time.Time    `json:"last_seen" redis:"last_seen"`
}

// LoadRatio is current load relative to capacity; a zero-capacity worker is full.
func (w WorkerDescriptor) LoadRatio() float64 {
	if w.Capacity <= 0 {
		return 1
	}
	return float64(w.CurrentLoad) / float64(w.Capacity)
}

// Task is one backend call shipped to a remote worker.
type Task struct {
	ID        string    `json:"task_id"`
	Operation Operation `json:"operation"`
	ProgramID string    `json:"program_id"`
	Engine    string    `json:"engine,omitempty"`
	Artifact  Artifact  `json:"artifact"`
	Input     []byte    `json:"input,omitempty"`
	Proof     []byte    `json:"proof,omitempty"`
}

// TaskOutcome is the result a worker reports for a task.
type TaskOutcome struct {
	Result  *JobResult
	Err     error
	Elapsed time.Duration
}

// Assignment is one attempt at running a task on a specific worker.
type Assignment struct {
	ID      string `json:"assignment_id"`
	Attempt int    `json:"attempt"`
	Task    Task   `json:"task"`
}
