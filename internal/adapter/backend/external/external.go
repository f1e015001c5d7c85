// Package external talks to a remote zkVM server over its HTTP API.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ secondary.Backend = (*Backend)(nil)

const maxResponseBytes = 512 << 20

type executeRequest struct {
	ProgramID string `json:"program_id"`
	Input     []byte `json:"input"`
}

type executeResponse struct {
	PublicValues    []byte `json:"public_values"`
	TotalNumCycles  uint64 `json:"total_num_cycles"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

type proveResponse struct {
	Proof         []byte `json:"proof"`
	ProvingTimeMs int64  `json:"proving_time_ms"`
}

type verifyRequest struct {
	ProgramID string `json:"program_id"`
	Proof     []byte `json:"proof"`
}

type verifyResponse struct {
	Verified      bool   `json:"verified"`
	FailureReason string `json:"failure_reason"`
}

// Config points the adapter at a server.
type Config struct {
	Endpoint string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
}

// Backend is the remote adapter.
type Backend struct {
	endpoint string
	client   *http.Client
	logger   primary.Logger
}

func New(cfg Config, logger primary.Logger) (*Backend, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("external backend requires an endpoint")
	}

	client := &http.Client{}
	if cfg.APIKey != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
		client = oauth2.NewClient(context.Background(), src)
	}

	return &Backend{endpoint: endpoint, client: client, logger: logger}, nil
}

func (b *Backend) Kind() domain.BackendKind {
	return domain.BackendExternal
}

// remoteID is the id the remote server knows the program by.
func remoteID(program domain.ProgramDescriptor) string {
	if program.Engine != "" {
		return program.Engine
	}
	return program.ID
}

func (b *Backend) Execute(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ExecutionResult, error) {
	var resp executeResponse
	if err := b.post(ctx, "execute", executeRequest{ProgramID: remoteID(program), Input: input}, &resp); err != nil {
		return nil, err
	}
	return &domain.ExecutionResult{
		TotalNumCycles:    resp.TotalNumCycles,
		ExecutionDuration: time.Duration(resp.ExecutionTimeMs) * time.Millisecond,
		Output:            resp.PublicValues,
	}, nil
}

func (b *Backend) Prove(ctx context.Context, program domain.ProgramDescriptor, input []byte) (*domain.ProofResult, error) {
	var resp proveResponse
	if err := b.post(ctx, "prove", executeRequest{ProgramID: remoteID(program), Input: input}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Proof) == 0 {
		return nil, domain.Errorf(domain.KindEngineFault, "prove", "server returned an empty proof")
	}
	return domain.NewProofResult(resp.Proof, time.Duration(resp.ProvingTimeMs)*time.Millisecond), nil
}

func (b *Backend) Verify(ctx context.Context, program domain.ProgramDescriptor, proof []byte) (*domain.VerificationResult, error) {
	var resp verifyResponse
	if err := b.post(ctx, "verify", verifyRequest{ProgramID: remoteID(program), Proof: proof}, &resp); err != nil {
		return nil, err
	}
	if resp.Verified {
		return domain.Verified(), nil
	}
	return domain.Rejected(resp.FailureReason), nil
}

func (b *Backend) post(ctx context.Context, op string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.NewError(domain.KindInvalidInput, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return domain.NewError(domain.KindEngineUnavailable, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.NewError(domain.KindOf(ctxErr), op, ctxErr)
		}
		b.logger.Warn("External zkVM unreachable", "endpoint", b.endpoint, "op", op, "error", err)
		return domain.NewError(domain.KindEngineUnavailable, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.NewError(domain.KindOf(ctxErr), op, ctxErr)
		}
		return domain.NewError(domain.KindEngineUnavailable, op, err)
	}

	if kind, failed := classifyStatus(resp.StatusCode); failed {
		return domain.Errorf(kind, op, "server answered %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return domain.Errorf(domain.KindEngineFault, op, "undecodable response: %v", err)
	}
	return nil
}

func classifyStatus(status int) (domain.ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.KindInvalidInput, true
	case status == http.StatusNotFound:
		return domain.KindArtifactNotFound, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.KindTimeout, true
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.KindEngineUnavailable, true
	default:
		return domain.KindEngineFault, true
	}
}
