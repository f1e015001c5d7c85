package router

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/core/services/registry"
	"gitlab.com/zkboost.net/internal/domain"
)

// Info describes what the service can run
type Info struct {
	Programs []domain.ProgramDescriptor `json:"programs"`
	Backends []domain.BackendKind       `json:"backends"`
}

// IRouter turns requests naming a program into tracked jobs
type IRouter interface {
	// Execute runs the program without proving
	Execute(ctx context.Context, programID string, input []byte) (uuid.UUID, error)

	// Prove runs the program and produces a proof, subject to admission
	Prove(ctx context.Context, programID string, input []byte) (uuid.UUID, error)

	// Verify checks a proof against the program
	Verify(ctx context.Context, programID string, proof []byte) (uuid.UUID, error)

	// Info lists the loaded programs and backend kinds
	Info() Info

	// SwapRegistry replaces the registry as a whole
	SwapRegistry(reg *registry.Registry)
}
