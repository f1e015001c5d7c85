package handlers

import (
	"context"
	"fmt"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/services/worker"
)

var _ primary.MessageHandler = (*PongHandler)(nil)

// PongHandler records the answer to a liveness ping
type PongHandler struct {
	Coordinator worker.IWorkerCoordinator
}

func (h *PongHandler) HandleMessage(ctx context.Context, conn primary.MessageConn, _ []byte, workerID *string) error {
	if *workerID == "" {
		conn.SendError(1017, "Worker not registered")
		return fmt.Errorf("worker not registered")
	}
	h.Coordinator.Seen(ctx, *workerID)
	return nil
}
