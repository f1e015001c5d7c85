// Package process drives a local engine binary, one child process per call.
//
// The binary is invoked as
//
//	<binary> <execute|prove|verify> --artifact <path> [--engine <name>]
//
// with the input (or proof) on stdin and a JSON report on stdout.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ secondary.Backend = (*Backend)(nil)

// Exit codes with a meaning beyond "engine fault".
const (
	ExitInvalidInput     = 2
	ExitArtifactNotFound = 3
)

const (
	stderrLimit = 4 << 10
	waitDelay   = 2 * time.Second
)

type executeReport struct {
	TotalNumCycles uint64 `json:"total_num_cycles"`
	Output         []byte `json:"output"`
}

type proveReport struct {
	Proof []byte `json:"proof"`
}

type verifyReport struct {
	Verified      *bool  `json:"verified"`
	FailureReason string `json:"failure_reason"`
}

// Backend spawns Binary for every operation.
type Backend struct {
	binary string
	logger primary.Logger
}

func New(binary string, logger primary.Logger) *Backend {
	return &Backend{binary: binary, logger: logger}
}

func (b *Backend) Kind() domain.BackendKind {
	return domain.BackendProcess
}

func (b *Backend) Execute(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ExecutionResult, error) {
	start := time.Now()
	var report executeReport
	if err := b.call(ctx, "execute", program, input, &report); err != nil {
		return nil, err
	}
	return &domain.ExecutionResult{
		TotalNumCycles:    report.TotalNumCycles,
		ExecutionDuration: time.Since(start),
		Output:            report.Output,
	}, nil
}

func (b *Backend) Prove(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ProofResult, error) {
	start := time.Now()
	var report proveReport
	if err := b.call(ctx, "prove", program, input, &report); err != nil {
		return nil, err
	}
	if len(report.Proof) == 0 {
		return nil, domain.Errorf(domain.KindEngineFault, "prove", "engine returned an empty proof")
	}
	return domain.NewProofResult(report.Proof, time.Since(start)), nil
}

func (b *Backend) Verify(ctx context.Context, program domain.ProgramDescriptor, proof []byte) (*domain.VerificationResult, error) {
	var report verifyReport
	if err := b.call(ctx, "verify", program, proof, &report); err != nil {
		return nil, err
	}
	if report.Verified == nil {
		return nil, domain.Errorf(domain.KindEngineFault, "verify", "engine report has no verdict")
	}
	if *report.Verified {
		return domain.Verified(), nil
	}
	return domain.Rejected(report.FailureReason), nil
}

// call runs one engine process and decodes its report into out. The child
// and its process group are killed on every early exit.
func (b *Backend) call(ctx context.Context, op string, program domain.ProgramDescriptor, stdin []byte, out interface{}) error {
	if program.Artifact.Path == "" {
		return domain.Errorf(domain.KindArtifactNotFound, op, "program %q has no local artifact", program.ID)
	}
	if _, err := os.Stat(program.Artifact.Path); err != nil {
		return domain.Errorf(domain.KindArtifactNotFound, op, "artifact %s: %v", program.Artifact.Path, err)
	}

	args := []string{op, "--artifact", program.Artifact.Path}
	if program.Engine != "" {
		args = append(args, "--engine", program.Engine)
	}

	cmd := exec.CommandContext(ctx, b.binary, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	killGroupOnCancel(cmd)

	b.logger.Debug("Spawning engine", "binary", b.binary, "op", op, "programId", program.ID)

	if err := cmd.Start(); err != nil {
		return domain.Errorf(domain.KindEngineUnavailable, op, "start %s: %v", b.binary, err)
	}
	err := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.NewError(domain.KindOf(ctxErr), op, ctxErr)
	}
	if err != nil {
		return classifyExit(op, err, stderr.String())
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return domain.Errorf(domain.KindEngineFault, op, "malformed engine report: %v", err)
	}
	return nil
}

func classifyExit(op string, err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return domain.Errorf(domain.KindEngineFault, op, "engine: %v", err)
	}

	kind := domain.KindEngineFault
	switch exitErr.ExitCode() {
	case ExitInvalidInput:
		kind = domain.KindInvalidInput
	case ExitArtifactNotFound:
		kind = domain.KindArtifactNotFound
	}
	if msg == "" {
		msg = exitErr.Error()
	}
	return domain.NewError(kind, op, fmt.Errorf("engine exited with code %d: %s", exitErr.ExitCode(), msg))
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
