package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

type stubBackend struct{ kind domain.BackendKind }

func (s stubBackend) Kind() domain.BackendKind { return s.kind }

func (stubBackend) Execute(context.Context, domain.ProgramDescriptor, []byte) (*domain.ExecutionResult, error) {
	return &domain.ExecutionResult{}, nil
}

func (stubBackend) Prove(context.Context, domain.ProgramDescriptor, []byte) (*domain.ProofResult, error) {
	return domain.NewProofResult(nil, 0), nil
}

func (stubBackend) Verify(context.Context, domain.ProgramDescriptor, []byte) (*domain.VerificationResult, error) {
	return domain.Verified(), nil
}

func backends(kinds ...domain.BackendKind) map[domain.BackendKind]secondary.Backend {
	m := map[domain.BackendKind]secondary.Backend{}
	for _, k := range kinds {
		m[k] = stubBackend{kind: k}
	}
	return m
}

func TestBuild_ResolveAndList(t *testing.T) {
	reg, err := Build([]domain.ProgramDescriptor{
		{ID: "sha256", Backend: domain.BackendProcess},
		{ID: "fibonacci", Backend: domain.BackendMock},
	}, backends(domain.BackendMock, domain.BackendProcess))
	require.NoError(t, err)

	b, err := reg.Resolve("fibonacci")
	require.NoError(t, err)
	assert.Equal(t, domain.BackendMock, b.Backend.Kind())
	assert.Equal(t, "fibonacci", b.Program.ID)

	ids := []string{}
	for _, p := range reg.Programs() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"fibonacci", "sha256"}, ids)
	assert.Equal(t, []domain.BackendKind{domain.BackendMock, domain.BackendProcess}, reg.Kinds())
	assert.Equal(t, 2, reg.Len())
}

func TestResolve_UnknownProgram(t *testing.T) {
	reg, err := Build(nil, backends())
	require.NoError(t, err)

	_, err = reg.Resolve("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuild_Rejects(t *testing.T) {
	cases := map[string][]domain.ProgramDescriptor{
		"duplicate id": {
			{ID: "fib", Backend: domain.BackendMock},
			{ID: "fib", Backend: domain.BackendMock},
		},
		"missing adapter": {{ID: "fib", Backend: domain.BackendExternal}},
		"empty id":        {{ID: "  ", Backend: domain.BackendMock}},
	}
	for name, programs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(programs, backends(domain.BackendMock))
			assert.Error(t, err)
		})
	}
}

func TestPrograms_ReturnsCopy(t *testing.T) {
	reg, err := Build([]domain.ProgramDescriptor{{ID: "fib", Backend: domain.BackendMock}}, backends(domain.BackendMock))
	require.NoError(t, err)

	listing := reg.Programs()
	listing[0].ID = "mutated"

	b, err := reg.Resolve("fib")
	require.NoError(t, err)
	assert.Equal(t, "fib", b.Program.ID)
	assert.Equal(t, "fib", reg.Programs()[0].ID)
}
