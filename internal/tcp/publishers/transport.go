package publishers

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
	"gitlab.com/zkboost.net/internal/tcp/connectionmanager"
	"gitlab.com/zkboost.net/internal/tcp/defs"
)

var _ secondary.WorkerTransport = (*Transport)(nil)

// Transport publishes coordinator messages to connected workers
type Transport struct {
	ConnectionMgr *connectionmanager.ConnectionManager
	Logger        primary.Logger
}

func NewTransport(connectionMgr *connectionmanager.ConnectionManager, logger primary.Logger) *Transport {
	return &Transport{
		ConnectionMgr: connectionMgr,
		Logger:        logger,
	}
}

// Assign sends a job assignment
func (t *Transport) Assign(ctx context.Context, workerID string, assignment domain.Assignment) error {
	if err := t.publish(ctx, workerID, defs.MsgJobAssign, defs.NewJobAssignData(assignment)); err != nil {
		t.Logger.Error("Failed to send job assignment", "workerId", workerID, "assignmentId", assignment.ID, "error", err)
		return err
	}
	t.Logger.Debug("Job assigned to worker",
		"workerId", workerID,
		"assignmentId", assignment.ID,
		"taskId", assignment.Task.ID,
		"operation", assignment.Task.Operation)
	return nil
}

func (t *Transport) CancelAssignment(ctx context.Context, workerID, assignmentID string) error {
	return t.publish(ctx, workerID, defs.MsgJobCancel, defs.JobCancelData{AssignmentID: assignmentID})
}

func (t *Transport) Ping(ctx context.Context, workerID string) error {
	return t.publish(ctx, workerID, defs.MsgPing, defs.PingData{Timestamp: time.Now().UnixNano()})
}

func (t *Transport) publish(ctx context.Context, workerID string, msgType byte, v interface{}) error {
	conn, exists := t.ConnectionMgr.GetConnection(workerID)
	if !exists {
		return fmt.Errorf("worker not connected: %s", workerID)
	}
	return conn.Send(ctx, msgType, v)
}
