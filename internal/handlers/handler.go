package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"gitlab.com/zkboost.net/internal/handlers/response"
)

// DecodeJSON reads the request body into v, writing the error response on
// failure
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.DecodeError(w, err)
		return false
	}
	return true
}

// JobID parses the {jobId} route variable
func JobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["jobId"]
	id, err := uuid.Parse(raw)
	if err != nil {
		response.BadRequest(w, "invalid job id "+raw)
		return uuid.Nil, false
	}
	return id, true
}

// Millis renders a duration the way the API reports timings
func Millis(d time.Duration) int64 {
	return d.Milliseconds()
}
