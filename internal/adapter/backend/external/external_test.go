package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/zkboost.net/internal/adapter/logging"
	"gitlab.com/zkboost.net/internal/domain"
)

var program = domain.ProgramDescriptor{ID: "fibonacci", Backend: domain.BackendExternal}

func newServer(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := New(Config{Endpoint: srv.URL + "/", APIKey: "secret"}, logging.NewNopLogger())
	require.NoError(t, err)
	return b
}

func TestExternal_RoundTrip(t *testing.T) {
	b := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)

		switch r.URL.Path {
		case "/execute":
			var req executeRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "fibonacci", req.ProgramID)
			assert.Equal(t, []byte{10, 0, 0, 0}, req.Input)
			_ = json.NewEncoder(w).Encode(executeResponse{PublicValues: []byte{55}, TotalNumCycles: 1234, ExecutionTimeMs: 7})
		case "/prove":
			_ = json.NewEncoder(w).Encode(proveResponse{Proof: []byte("proof"), ProvingTimeMs: 1500})
		case "/verify":
			var req verifyRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_ = json.NewEncoder(w).Encode(verifyResponse{Verified: string(req.Proof) == "proof", FailureReason: "mismatch"})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	exec, err := b.Execute(ctx, program, []byte{10, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), exec.TotalNumCycles)
	assert.Equal(t, []byte{55}, exec.Output)
	assert.Equal(t, 7*time.Millisecond, exec.ExecutionDuration)

	proof, err := b.Prove(ctx, program, []byte{10, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 5, proof.ProofSizeBytes)
	assert.Equal(t, 1500*time.Millisecond, proof.ProvingTime)

	ok, err := b.Verify(ctx, program, proof.Proof)
	require.NoError(t, err)
	assert.True(t, ok.Verified)

	bad, err := b.Verify(ctx, program, []byte("other"))
	require.NoError(t, err)
	assert.False(t, bad.Verified)
	assert.Equal(t, "mismatch", bad.FailureReason)
}

func TestExternal_StatusClassification(t *testing.T) {
	cases := map[int]domain.ErrorKind{
		http.StatusBadRequest:          domain.KindInvalidInput,
		http.StatusNotFound:            domain.KindArtifactNotFound,
		http.StatusServiceUnavailable:  domain.KindEngineUnavailable,
		http.StatusInternalServerError: domain.KindEngineUnavailable,
		http.StatusGatewayTimeout:      domain.KindTimeout,
		http.StatusConflict:            domain.KindEngineFault,
	}
	for status, kind := range cases {
		b := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		})
		_, err := b.Prove(context.Background(), program, nil)
		require.Error(t, err)
		assert.Equal(t, kind, domain.KindOf(err), "status %d", status)
	}
}

func TestExternal_MalformedBody(t *testing.T) {
	b := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	_, err := b.Execute(context.Background(), program, nil)
	assert.ErrorIs(t, err, domain.ErrEngineFault)
}

func TestExternal_UnreachableAndDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	b, err := New(Config{Endpoint: url}, logging.NewNopLogger())
	require.NoError(t, err)
	_, err = b.Execute(context.Background(), program, nil)
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)

	slow := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = slow.Prove(ctx, program, nil)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(Config{}, logging.NewNopLogger())
	assert.Error(t, err)
}
