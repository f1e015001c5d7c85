package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/services/worker"
	"gitlab.com/zkboost.net/internal/tcp/defs"
)

var _ primary.MessageHandler = (*WorkerHeartbeatHandler)(nil)

// WorkerHeartbeatHandler handles worker heartbeat messages
type WorkerHeartbeatHandler struct {
	Coordinator worker.IWorkerCoordinator
	Logger      primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *WorkerHeartbeatHandler) HandleMessage(ctx context.Context, conn primary.MessageConn, payload []byte, workerID *string) error {
	if *workerID == "" {
		conn.SendError(1003, "Worker not registered")
		return fmt.Errorf("worker not registered")
	}

	var heartbeatData defs.WorkerHeartbeatData
	if err := json.Unmarshal(payload, &heartbeatData); err != nil {
		h.Logger.Error("Failed to parse worker heartbeat", "error", err)
		conn.SendError(1004, "Invalid heartbeat data")
		return err
	}

	if heartbeatData.WorkerID != *workerID {
		h.Logger.Error("Worker ID mismatch in heartbeat", "expected", *workerID, "actual", heartbeatData.WorkerID)
		conn.SendError(1005, "Worker ID mismatch")
		return fmt.Errorf("worker ID mismatch")
	}

	if err := h.Coordinator.Heartbeat(ctx, *workerID, heartbeatData.Load); err != nil {
		h.Logger.Error("Failed to update worker heartbeat", "workerId", *workerID, "error", err)
		conn.SendError(1006, "Failed to update heartbeat")
		return err
	}
	return nil
}
