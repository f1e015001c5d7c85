package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/services/worker"
	"gitlab.com/zkboost.net/internal/tcp/defs"
)

var _ primary.MessageHandler = (*JobResultHandler)(nil)

// JobResultHandler handles job result messages
type JobResultHandler struct {
	Coordinator worker.IWorkerCoordinator
	Logger      primary.Logger
}

// HandleMessage implements the MessageHandler interface. A stale result is
// not a protocol error.
func (h *JobResultHandler) HandleMessage(ctx context.Context, conn primary.MessageConn, payload []byte, workerID *string) error {
	if *workerID == "" {
		conn.SendError(1013, "Worker not registered")
		return fmt.Errorf("worker not registered")
	}

	var resultData defs.JobResultData
	if err := json.Unmarshal(payload, &resultData); err != nil {
		h.Logger.Error("Failed to parse job result", "error", err)
		conn.SendError(1014, "Invalid job result data")
		return err
	}

	accepted := h.Coordinator.HandleResult(ctx, *workerID, resultData.AssignmentID, resultData.Outcome())
	h.Logger.Debug("Job result received",
		"workerId", *workerID,
		"assignmentId", resultData.AssignmentID,
		"taskId", resultData.TaskID,
		"success", resultData.Success,
		"accepted", accepted)
	return nil
}
