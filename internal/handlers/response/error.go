package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"gitlab.com/zkboost.net/internal/domain"
)

type ErrorMessage struct {
	Message    string           `json:"message"`
	StatusCode int              `json:"status_code"`
	Kind       domain.ErrorKind `json:"kind,omitempty"`
	JobID      string           `json:"job_id,omitempty"`
}

var statusByKind = map[domain.ErrorKind]int{
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindInvalidInput:      http.StatusBadRequest,
	domain.KindArtifactNotFound:  http.StatusNotFound,
	domain.KindBackpressure:      http.StatusTooManyRequests,
	domain.KindTimeout:           http.StatusGatewayTimeout,
	domain.KindEngineUnavailable: http.StatusServiceUnavailable,
	domain.KindEngineFault:       http.StatusBadGateway,
	domain.KindCancelled:         http.StatusConflict,
}

// StatusOf maps an error kind to its HTTP status
func StatusOf(kind domain.ErrorKind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func WriteError(w http.ResponseWriter, err ErrorMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(err)
}

// WriteDomainError classifies err and writes it
func WriteDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	WriteError(w, ErrorMessage{Message: err.Error(), StatusCode: StatusOf(kind), Kind: kind})
}

// WriteJobFailure writes the failure of a terminal job
func WriteJobFailure(w http.ResponseWriter, job *domain.Job) {
	msg := ErrorMessage{JobID: job.ID.String()}
	switch {
	case job.State == domain.JobStateCancelled:
		msg.Kind = domain.KindCancelled
		msg.Message = "job cancelled"
	case job.Failure != nil:
		msg.Kind = job.Failure.Kind
		msg.Message = job.Failure.Message
	default:
		msg.Kind = domain.KindEngineFault
		msg.Message = "job failed"
	}
	msg.StatusCode = StatusOf(msg.Kind)
	WriteError(w, msg)
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, ErrorMessage{Message: message, StatusCode: http.StatusBadRequest, Kind: domain.KindInvalidInput})
}

// DecodeError reports a request body that failed to decode, 413 when it
// exceeded the body limit
func DecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, ErrorMessage{
			Message:    "request body too large",
			StatusCode: http.StatusRequestEntityTooLarge,
			Kind:       domain.KindInvalidInput,
		})
		return
	}
	BadRequest(w, "invalid request body: "+err.Error())
}

func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
