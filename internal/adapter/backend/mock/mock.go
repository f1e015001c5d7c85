// Package mock is a deterministic simulated zkVM. Proofs are bound to the
// program and input by a keyed blake2b MAC; they prove nothing.
package mock

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ secondary.Backend = (*Backend)(nil)

const (
	DefaultProofSize   = 1024
	DefaultProvingTime = 10 * time.Millisecond

	version    = 1
	headerLen  = 8
	commitLen  = blake2b.Size256
	macLen     = blake2b.Size256
	lengthLen  = 4
	baseCycles = 100
)

var magic = [4]byte{'Z', 'K', 'B', 'M'}

// Config holds the simulated engine parameters.
type Config struct {
	ProvingTime time.Duration
	ProofSize   int
}

// Backend is the mock adapter. It is safe for concurrent use.
type Backend struct {
	cfg Config
}

func New(cfg Config) *Backend {
	if cfg.ProofSize <= 0 {
		cfg.ProofSize = DefaultProofSize
	}
	if cfg.ProvingTime < 0 {
		cfg.ProvingTime = 0
	}
	return &Backend{cfg: cfg}
}

func (b *Backend) Kind() domain.BackendKind {
	return domain.BackendMock
}

// Execute derives cycles and public values from the program and input.
func (b *Backend) Execute(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Classify("execute", err)
	}
	start := time.Now()
	values, cycles := run(program, input)
	return &domain.ExecutionResult{
		TotalNumCycles:    cycles,
		ExecutionDuration: time.Since(start),
		Output:            values,
	}, nil
}

// Prove waits for the configured proving time, then emits
// header || commit(input) || len || public values || mac || padding.
func (b *Backend) Prove(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ProofResult, error) {
	start := time.Now()
	if b.cfg.ProvingTime > 0 {
		timer := time.NewTimer(b.cfg.ProvingTime)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, domain.Classify("prove", ctx.Err())
		}
	}

	values, _ := run(program, input)
	commit := blake2b.Sum256(input)

	body := make([]byte, 0, headerLen+commitLen+lengthLen+len(values)+macLen)
	body = append(body, magic[:]...)
	body = append(body, version, 0, 0, 0)
	body = append(body, commit[:]...)
	body = binary.BigEndian.AppendUint32(body, uint32(len(values)))
	body = append(body, values...)

	mac, err := seal(program, body)
	if err != nil {
		return nil, domain.NewError(domain.KindEngineFault, "prove", err)
	}
	proof := append(body, mac...)
	if pad := b.cfg.ProofSize - len(proof); pad > 0 {
		proof = append(proof, make([]byte, pad)...)
	}

	return domain.NewProofResult(proof, time.Since(start)), nil
}

// Verify checks the layout, the MAC and the padded length.
func (b *Backend) Verify(ctx context.Context, program domain.ProgramDescriptor, proof []byte) (*domain.VerificationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Classify("verify", err)
	}

	fixed := headerLen + commitLen + lengthLen
	if len(proof) < fixed+macLen {
		return domain.Rejected(fmt.Sprintf("proof too short: %d bytes", len(proof))), nil
	}
	if !bytes.Equal(proof[:4], magic[:]) {
		return domain.Rejected("bad proof magic"), nil
	}
	if proof[4] != version {
		return domain.Rejected(fmt.Sprintf("unsupported proof version %d", proof[4])), nil
	}

	n := int(binary.BigEndian.Uint32(proof[headerLen+commitLen : fixed]))
	end := fixed + n
	if n < 0 || end+macLen > len(proof) {
		return domain.Rejected("public values length out of range"), nil
	}

	want, err := seal(program, proof[:end])
	if err != nil {
		return nil, domain.NewError(domain.KindEngineFault, "verify", err)
	}
	if subtle.ConstantTimeCompare(want, proof[end:end+macLen]) != 1 {
		return domain.Rejected("proof does not match program"), nil
	}

	expected := end + macLen
	if expected < b.cfg.ProofSize {
		expected = b.cfg.ProofSize
	}
	if len(proof) != expected {
		return domain.Rejected(fmt.Sprintf("proof size %d, want %d", len(proof), expected)), nil
	}
	for _, c := range proof[end+macLen:] {
		if c != 0 {
			return domain.Rejected("non-zero proof padding"), nil
		}
	}

	return domain.Verified(), nil
}

// run is the simulated guest: public values are blake2b(digest || id || input).
func run(program domain.ProgramDescriptor, input []byte) ([]byte, uint64) {
	h, _ := blake2b.New256(nil)
	h.Write(program.Artifact.Digest[:])
	h.Write([]byte(program.ID))
	h.Write(input)
	values := h.Sum(nil)

	cycles := baseCycles + uint64(len(input))*8 + uint64(binary.BigEndian.Uint16(values[:2]))
	return values, cycles
}

func seal(program domain.ProgramDescriptor, body []byte) ([]byte, error) {
	key := blake2b.Sum256(append(program.Artifact.Digest[:], program.ID...))
	h, err := blake2b.New256(key[:])
	if err != nil {
		return nil, err
	}
	h.Write(body)
	return h.Sum(nil), nil
}
