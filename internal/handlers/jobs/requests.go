package jobs

import (
	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/domain"
)

// CallbackRequest registers a webhook on an existing job
type CallbackRequest struct {
	URL string `json:"url"`
}

type CallbackResponse struct {
	JobID uuid.UUID       `json:"job_id"`
	State domain.JobState `json:"state"`
}
