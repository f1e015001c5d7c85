package proofs

import (
	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/domain"
)

// ExecuteRequest runs a program without proving
type ExecuteRequest struct {
	ProgramID string `json:"program_id"`
	Input     []byte `json:"input"`
}

// ProveRequest proves a program run; Async returns 202 right away
type ProveRequest struct {
	ProgramID   string `json:"program_id"`
	Input       []byte `json:"input"`
	Async       bool   `json:"async,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type VerifyRequest struct {
	ProgramID string `json:"program_id"`
	Proof     []byte `json:"proof"`
}

type ExecuteResponse struct {
	JobID           uuid.UUID `json:"job_id"`
	ProgramID       string    `json:"program_id"`
	TotalNumCycles  uint64    `json:"total_num_cycles"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	PublicValues    []byte    `json:"public_values"`
}

type ProveResponse struct {
	JobID          uuid.UUID `json:"job_id"`
	ProgramID      string    `json:"program_id"`
	Proof          []byte    `json:"proof"`
	ProofSizeBytes int       `json:"proof_size_bytes"`
	ProvingTimeMs  int64     `json:"proving_time_ms"`
}

type VerifyResponse struct {
	JobID         uuid.UUID `json:"job_id"`
	ProgramID     string    `json:"program_id"`
	Verified      bool      `json:"verified"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// AcceptedResponse is returned when the result is not ready yet
type AcceptedResponse struct {
	JobID uuid.UUID       `json:"job_id"`
	State domain.JobState `json:"state"`
}

type InfoResponse struct {
	Programs    []domain.ProgramDescriptor `json:"programs"`
	Backends    []domain.BackendKind       `json:"backends"`
	CPUCount    int                        `json:"cpu_count"`
	TotalMemory uint64                     `json:"total_memory"`
	FreeMemory  uint64                     `json:"free_memory"`
	OS          string                     `json:"os"`
	Arch        string                     `json:"arch"`
	Version     string                     `json:"version"`
}
