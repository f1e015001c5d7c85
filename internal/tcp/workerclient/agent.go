// Package workerclient is the worker side of the coordinator protocol: it
// registers with the server and runs assignments on a local backend.
package workerclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
	"gitlab.com/zkboost.net/internal/tcp/connectionmanager"
	"gitlab.com/zkboost.net/internal/tcp/defs"
)

type Config struct {
	ID                string
	ServerAddr        string
	Address           string
	Capacity          int
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
}

type Agent struct {
	cfg     Config
	backend secondary.Backend
	logger  primary.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewAgent(cfg Config, backend secondary.Backend, logger primary.Logger) *Agent {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defs.HeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defs.ConnectionRetryDelay
	}
	return &Agent{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
		running: make(map[string]context.CancelFunc),
	}
}

func (a *Agent) ID() string {
	return a.cfg.ID
}

// Load is the number of assignments currently running
func (a *Agent) Load() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.running)
}

// Run keeps a session with the server open, reconnecting until ctx is done
func (a *Agent) Run(ctx context.Context) error {
	for {
		err := a.serve(ctx)
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn("Worker session ended, reconnecting", "workerId", a.cfg.ID, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.cfg.ReconnectDelay):
		}
	}
}

func (a *Agent) serve(ctx context.Context) error {
	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp", a.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", a.cfg.ServerAddr, err)
	}
	conn := connectionmanager.Wrap(raw)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	defer a.cancelAll()

	if err := a.register(ctx, conn); err != nil {
		return err
	}
	a.logger.Info("Worker registered", "workerId", a.cfg.ID, "server", a.cfg.ServerAddr, "backend", a.backend.Kind())

	go a.sendHeartbeats(ctx, conn)

	for {
		msgType, payload, err := defs.ReadFrame(conn)
		if err != nil {
			return err
		}
		if err := a.handle(ctx, conn, msgType, payload); err != nil {
			return err
		}
	}
}

func (a *Agent) register(ctx context.Context, conn *connectionmanager.Conn) error {
	address := a.cfg.Address
	if address == "" {
		address = conn.LocalAddr().String()
	}
	return conn.Send(ctx, defs.MsgWorkerRegister, defs.WorkerRegistrationData{
		WorkerID: a.cfg.ID,
		Backend:  string(a.backend.Kind()),
		Capacity: a.cfg.Capacity,
		Address:  address,
	})
}

func (a *Agent) handle(ctx context.Context, conn *connectionmanager.Conn, msgType byte, payload []byte) error {
	switch msgType {
	case defs.MsgJobAssign:
		var data defs.JobAssignData
		if err := json.Unmarshal(payload, &data); err != nil {
			return fmt.Errorf("invalid job assignment: %w", err)
		}
		a.start(ctx, conn, data.Assignment())
	case defs.MsgJobCancel:
		var data defs.JobCancelData
		if err := json.Unmarshal(payload, &data); err != nil {
			return fmt.Errorf("invalid job cancel: %w", err)
		}
		a.cancel(data.AssignmentID)
	case defs.MsgPing:
		return conn.SendRaw(ctx, defs.MsgPong, payload)
	case defs.MsgError:
		var data defs.ErrorData
		if err := json.Unmarshal(payload, &data); err != nil {
			return fmt.Errorf("invalid error message: %w", err)
		}
		return fmt.Errorf("server error %d: %s", data.Code, data.Message)
	default:
		a.logger.Warn("Unknown message type", "workerId", a.cfg.ID, "type", msgType)
	}
	return nil
}

func (a *Agent) start(ctx context.Context, conn *connectionmanager.Conn, assignment domain.Assignment) {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.running[assignment.ID] = cancel
	a.mu.Unlock()

	a.logger.Info("Processing assignment",
		"workerId", a.cfg.ID,
		"assignmentId", assignment.ID,
		"operation", assignment.Task.Operation,
		"programId", assignment.Task.ProgramID)

	go func() {
		defer a.finish(assignment.ID)

		start := time.Now()
		result, err := a.execute(runCtx, assignment.Task)
		if errors.Is(runCtx.Err(), context.Canceled) {
			a.logger.Info("Assignment cancelled", "workerId", a.cfg.ID, "assignmentId", assignment.ID)
			return
		}

		report := defs.NewJobResultData(assignment, result, err, time.Since(start))
		if err := conn.Send(ctx, defs.MsgJobResult, report); err != nil {
			a.logger.Error("Failed to send job result", "workerId", a.cfg.ID, "assignmentId", assignment.ID, "error", err)
		}
	}()
}

func (a *Agent) execute(ctx context.Context, task domain.Task) (*domain.JobResult, error) {
	program := domain.ProgramDescriptor{
		ID:       task.ProgramID,
		Backend:  a.backend.Kind(),
		Engine:   task.Engine,
		Artifact: task.Artifact,
	}
	switch task.Operation {
	case domain.OperationExecute:
		res, err := a.backend.Execute(ctx, program, task.Input)
		if err != nil {
			return nil, err
		}
		return &domain.JobResult{Execution: res}, nil
	case domain.OperationProve:
		res, err := a.backend.Prove(ctx, program, task.Input)
		if err != nil {
			return nil, err
		}
		return &domain.JobResult{Proof: res}, nil
	case domain.OperationVerify:
		res, err := a.backend.Verify(ctx, program, task.Proof)
		if err != nil {
			return nil, err
		}
		return &domain.JobResult{Verification: res}, nil
	}
	return nil, domain.Errorf(domain.KindInvalidInput, "worker", "unknown operation %q", task.Operation)
}

func (a *Agent) cancel(assignmentID string) {
	a.mu.Lock()
	cancel, ok := a.running[assignmentID]
	a.mu.Unlock()
	if ok {
		cancel()
	}
}

func (a *Agent) finish(assignmentID string) {
	a.mu.Lock()
	cancel, ok := a.running[assignmentID]
	delete(a.running, assignmentID)
	a.mu.Unlock()
	if ok {
		cancel()
	}
}

func (a *Agent) cancelAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cancel := range a.running {
		cancel()
	}
}

// sendHeartbeats sends periodic heartbeats to the server
func (a *Agent) sendHeartbeats(ctx context.Context, conn *connectionmanager.Conn) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := conn.Send(ctx, defs.MsgWorkerHeartbeat, defs.WorkerHeartbeatData{
				WorkerID:  a.cfg.ID,
				Load:      a.Load(),
				Timestamp: time.Now().Unix(),
			})
			if err != nil {
				a.logger.Error("Failed to send heartbeat", "workerId", a.cfg.ID, "error", err)
				return
			}
		}
	}
}
