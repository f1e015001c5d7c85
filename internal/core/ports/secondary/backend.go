package secondary

import (
	"context"

	"gitlab.com/zkboost.net/internal/domain"
)

// Backend adapts one proving engine to the uniform operation set. Calls may
// take minutes; implementations honour ctx and release their engine handle on
// every return path. Errors are classified as *domain.Error.
type Backend interface {
	// Kind returns the backend kind this adapter serves.
	Kind() domain.BackendKind

	// Execute runs the guest program without proving.
	Execute(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ExecutionResult, error)

	// Prove runs the guest program and produces a proof.
	Prove(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ProofResult, error)

	// Verify checks a proof. A rejected proof is a result, not an error.
	Verify(ctx context.Context, program domain.ProgramDescriptor, proof []byte) (*domain.VerificationResult, error)
}
