package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/zkboost.net/internal/domain"
)

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(domain.KindNotFound))
	assert.Equal(t, http.StatusTooManyRequests, StatusOf(domain.KindBackpressure))
	assert.Equal(t, http.StatusGatewayTimeout, StatusOf(domain.KindTimeout))
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(domain.KindEngineUnavailable))
	assert.Equal(t, http.StatusBadGateway, StatusOf(domain.KindEngineFault))
	assert.Equal(t, http.StatusConflict, StatusOf(domain.KindCancelled))
	assert.Equal(t, http.StatusInternalServerError, StatusOf("SOMETHING"))
}

func TestWriteDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, domain.Errorf(domain.KindArtifactNotFound, "prove", "missing elf"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, domain.KindArtifactNotFound, body.Kind)
	assert.Equal(t, http.StatusNotFound, body.StatusCode)
	assert.Contains(t, body.Message, "missing elf")
}

func TestWriteJobFailure(t *testing.T) {
	id := uuid.New()
	rec := httptest.NewRecorder()
	WriteJobFailure(rec, &domain.Job{ID: id, State: domain.JobStateCancelled})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	WriteJobFailure(rec, &domain.Job{ID: id, State: domain.JobStateFailed,
		Failure: &domain.JobFailure{Kind: domain.KindInvalidInput, Message: "bad"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, id.String(), body.JobID)
	assert.Equal(t, "bad", body.Message)
}
