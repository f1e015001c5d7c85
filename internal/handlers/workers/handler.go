package workers

import (
	"net/http"

	"github.com/gorilla/mux"

	"gitlab.com/zkboost.net/internal/core/services/worker"
	"gitlab.com/zkboost.net/internal/handlers/response"
)

type ApiHandler struct {
	Coordinator worker.IWorkerCoordinator
}

func NewHandler(coordinator worker.IWorkerCoordinator) *ApiHandler {
	return &ApiHandler{
		Coordinator: coordinator,
	}
}

// Register mounts the admin routes; r carries the auth middleware
func (api *ApiHandler) Register(r *mux.Router) {
	r.HandleFunc("/workers", api.GetWorkers).Methods(http.MethodGet)
	r.HandleFunc("/workers/{workerId}/drain", api.Drain).Methods(http.MethodPost)
}

func (api *ApiHandler) GetWorkers(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, http.StatusOK, map[string]interface{}{"workers": api.Coordinator.Workers()})
}

func (api *ApiHandler) Drain(w http.ResponseWriter, r *http.Request) {
	desc, err := api.Coordinator.Drain(r.Context(), mux.Vars(r)["workerId"])
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteSuccess(w, http.StatusOK, desc)
}
