//go:build unix

package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/zkboost.net/internal/adapter/logging"
	"gitlab.com/zkboost.net/internal/domain"
)

const fakeEngine = `#!/bin/sh
op="$1"
input=$(cat)
case "$input" in
  bad) echo "cannot decode input" >&2; exit 2 ;;
  noelf) echo "elf missing" >&2; exit 3 ;;
  crash) echo "segfault" >&2; exit 139 ;;
  garbage) echo "not json"; exit 0 ;;
  slow) sleep 30; exit 0 ;;
esac
case "$op" in
  execute) printf '{"total_num_cycles":42,"output":"aGk="}' ;;
  prove) printf '{"proof":"cHJvb2Y="}' ;;
  verify)
    if [ "$input" = "proof" ]; then
      printf '{"verified":true}'
    else
      printf '{"verified":false,"failure_reason":"bad proof"}'
    fi ;;
esac
`

func setup(t *testing.T) (*Backend, domain.ProgramDescriptor) {
	t.Helper()
	dir := t.TempDir()

	bin := filepath.Join(dir, "engine.sh")
	require.NoError(t, os.WriteFile(bin, []byte(fakeEngine), 0o755))
	artifact := filepath.Join(dir, "fibonacci.elf")
	require.NoError(t, os.WriteFile(artifact, []byte("elf"), 0o644))

	program := domain.ProgramDescriptor{
		ID:       "fibonacci",
		Backend:  domain.BackendProcess,
		Engine:   "sp1",
		Artifact: domain.Artifact{Path: artifact},
	}
	return New(bin, logging.NewNopLogger()), program
}

func TestProcess_Operations(t *testing.T) {
	b, program := setup(t)
	ctx := context.Background()

	exec, err := b.Execute(ctx, program, []byte("10"))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), exec.TotalNumCycles)
	assert.Equal(t, []byte("hi"), exec.Output)

	proof, err := b.Prove(ctx, program, []byte("10"))
	require.NoError(t, err)
	assert.Equal(t, []byte("proof"), proof.Proof)
	assert.Equal(t, 5, proof.ProofSizeBytes)

	ok, err := b.Verify(ctx, program, proof.Proof)
	require.NoError(t, err)
	assert.True(t, ok.Verified)

	rejected, err := b.Verify(ctx, program, []byte("proo"))
	require.NoError(t, err)
	assert.False(t, rejected.Verified)
	assert.Equal(t, "bad proof", rejected.FailureReason)
}

func TestProcess_ErrorClassification(t *testing.T) {
	b, program := setup(t)
	ctx := context.Background()

	cases := map[string]domain.ErrorKind{
		"bad":     domain.KindInvalidInput,
		"noelf":   domain.KindArtifactNotFound,
		"crash":   domain.KindEngineFault,
		"garbage": domain.KindEngineFault,
	}
	for input, kind := range cases {
		t.Run(input, func(t *testing.T) {
			_, err := b.Execute(ctx, program, []byte(input))
			require.Error(t, err)
			assert.Equal(t, kind, domain.KindOf(err))
		})
	}

	_, err := b.Execute(ctx, program, []byte("bad"))
	assert.Contains(t, err.Error(), "cannot decode input")
}

func TestProcess_MissingBinaryOrArtifact(t *testing.T) {
	b, program := setup(t)
	ctx := context.Background()

	missing := New(filepath.Join(t.TempDir(), "nope"), logging.NewNopLogger())
	_, err := missing.Prove(ctx, program, []byte("10"))
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)

	program.Artifact.Path = filepath.Join(t.TempDir(), "gone.elf")
	_, err = b.Prove(ctx, program, []byte("10"))
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestProcess_TimeoutKillsProcessGroup(t *testing.T) {
	b, program := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Prove(ctx, program, []byte("slow"))
	require.Error(t, err)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
	assert.Less(t, time.Since(start), waitDelay)
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	tb := &tailBuffer{limit: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}
