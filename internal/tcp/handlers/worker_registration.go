package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/services/worker"
	"gitlab.com/zkboost.net/internal/domain"
	"gitlab.com/zkboost.net/internal/tcp/connectionmanager"
	"gitlab.com/zkboost.net/internal/tcp/defs"
)

// Implementation of message handlers
// Each handler deals with one specific message type

var _ primary.MessageHandler = (*WorkerRegistrationHandler)(nil)

// WorkerRegistrationHandler handles worker registration messages
type WorkerRegistrationHandler struct {
	Coordinator   worker.IWorkerCoordinator
	ConnectionMgr *connectionmanager.ConnectionManager
	Logger        primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *WorkerRegistrationHandler) HandleMessage(ctx context.Context, conn primary.MessageConn, payload []byte, workerID *string) error {
	var registerData defs.WorkerRegistrationData
	if err := json.Unmarshal(payload, &registerData); err != nil {
		h.Logger.Error("Failed to parse worker registration", "error", err)
		conn.SendError(1001, "Invalid registration data")
		return err
	}
	if *workerID != "" && *workerID != registerData.WorkerID {
		conn.SendError(1002, "Connection already registered")
		return fmt.Errorf("connection of %s re-registered as %s", *workerID, registerData.WorkerID)
	}

	address := registerData.Address
	if address == "" {
		address = conn.RemoteAddr().String()
	}

	if err := h.Coordinator.Register(ctx, domain.WorkerDescriptor{
		ID:       registerData.WorkerID,
		Address:  address,
		Backend:  registerData.Backend,
		Capacity: registerData.Capacity,
	}); err != nil {
		h.Logger.Error("Failed to register worker", "workerId", registerData.WorkerID, "error", err)
		conn.SendError(1002, "Failed to register worker: "+err.Error())
		return err
	}

	*workerID = registerData.WorkerID
	h.ConnectionMgr.RegisterWorker(registerData.WorkerID, conn)
	return nil
}
