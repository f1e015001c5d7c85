// Package cluster runs backend calls on remote workers through the
// coordinator.
package cluster

import (
	"context"

	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ secondary.Backend = (*Backend)(nil)

// Dispatcher places a task on a worker and waits for its outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, task domain.Task) (*domain.JobResult, error)
}

type Backend struct {
	dispatcher Dispatcher
}

func New(dispatcher Dispatcher) *Backend {
	return &Backend{dispatcher: dispatcher}
}

func (b *Backend) Kind() domain.BackendKind {
	return domain.BackendCluster
}

func (b *Backend) Execute(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ExecutionResult, error) {
	res, err := b.dispatch(ctx, domain.OperationExecute, program, input, nil)
	if err != nil {
		return nil, err
	}
	if res.Execution == nil {
		return nil, missing(domain.OperationExecute)
	}
	return res.Execution, nil
}

func (b *Backend) Prove(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ProofResult, error) {
	res, err := b.dispatch(ctx, domain.OperationProve, program, input, nil)
	if err != nil {
		return nil, err
	}
	if res.Proof == nil {
		return nil, missing(domain.OperationProve)
	}
	return res.Proof, nil
}

func (b *Backend) Verify(ctx context.Context, program domain.ProgramDescriptor, proof []byte) (*domain.VerificationResult, error) {
	res, err := b.dispatch(ctx, domain.OperationVerify, program, nil, proof)
	if err != nil {
		return nil, err
	}
	if res.Verification == nil {
		return nil, missing(domain.OperationVerify)
	}
	return res.Verification, nil
}

func (b *Backend) dispatch(ctx context.Context, op domain.Operation, program domain.ProgramDescriptor, input, proof []byte) (*domain.JobResult, error) {
	res, err := b.dispatcher.Dispatch(ctx, domain.Task{
		Operation: op,
		ProgramID: program.ID,
		Engine:    program.Engine,
		Artifact:  program.Artifact,
		Input:     input,
		Proof:     proof,
	})
	if err != nil {
		return nil, domain.Classify(string(op), err)
	}
	if res == nil {
		return nil, missing(op)
	}
	return res, nil
}

func missing(op domain.Operation) error {
	return domain.Errorf(domain.KindEngineFault, string(op), "worker returned no %s result", op)
}
