package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/zkboost.net/internal/adapter/crypto"
	"gitlab.com/zkboost.net/internal/adapter/logging"
	"gitlab.com/zkboost.net/internal/domain"
)

func fastClient(signer *crypto.JWTServiceImpl) *Client {
	cfg := Config{Backoff: []time.Duration{time.Millisecond, time.Millisecond}, AttemptTimeout: time.Second}
	if signer == nil {
		return NewClient(nil, logging.NewNopLogger(), cfg)
	}
	return NewClient(signer, logging.NewNopLogger(), cfg)
}

func testJob() *domain.Job {
	return &domain.Job{
		ID:        uuid.New(),
		ProgramID: "fibonacci",
		Operation: domain.OperationProve,
		State:     domain.JobStateCompleted,
		Result:    &domain.JobResult{Proof: domain.NewProofResult([]byte{1, 2, 3}, time.Second)},
	}
}

func TestDeliver_SignedAndIdempotent(t *testing.T) {
	signer := crypto.NewJWTService("hook-secret")
	job := testJob()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, job.ID.String(), r.Header.Get("Idempotency-Key"))

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ok, err := signer.VerifyTokenHMAC(r.Context(), token, "HS256")
		assert.NoError(t, err)
		assert.True(t, ok)

		var got domain.Job
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, []byte{1, 2, 3}, got.Result.Proof.Proof)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, fastClient(signer).Sink(srv.URL).Deliver(context.Background(), job))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliver_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, fastClient(nil).Sink(srv.URL).Deliver(context.Background(), testJob()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliver_GivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := fastClient(nil).Sink(srv.URL).Deliver(context.Background(), testJob())
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliver_StopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	err := fastClient(nil).Sink(srv.URL).Deliver(context.Background(), testJob())
	assert.ErrorContains(t, err, "410")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliver_HonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(nil, logging.NewNopLogger(), Config{Backoff: []time.Duration{time.Hour}})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.Sink(srv.URL).Deliver(ctx, testJob())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
