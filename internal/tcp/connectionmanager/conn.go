package connectionmanager

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/tcp/defs"
)

var _ primary.MessageConn = (*Conn)(nil)

// Conn serializes writes on one worker connection
type Conn struct {
	net.Conn
	writeMu sync.Mutex
}

func Wrap(conn net.Conn) *Conn {
	return &Conn{Conn: conn}
}

// Send marshals v and writes it as a single frame
func (c *Conn) Send(ctx context.Context, msgType byte, v interface{}) error {
	payload, err := defs.Encode(msgType, v)
	if err != nil {
		return err
	}
	return c.SendRaw(ctx, msgType, payload)
}

func (c *Conn) SendRaw(ctx context.Context, msgType byte, payload []byte) error {
	deadline := time.Now().Add(defs.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	return defs.WriteFrame(c.Conn, msgType, payload)
}

// SendError sends an error message, ignoring write failures as the
// connection might be closing
func (c *Conn) SendError(code int, message string) {
	_ = c.Send(context.Background(), defs.MsgError, defs.ErrorData{Code: code, Message: message})
}

// ConnectionManager tracks the live connection of every registered worker
type ConnectionManager struct {
	mu     sync.RWMutex
	conns  map[string]primary.MessageConn
	Logger primary.Logger
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger primary.Logger) *ConnectionManager {
	return &ConnectionManager{
		conns:  make(map[string]primary.MessageConn),
		Logger: logger,
	}
}

// RegisterWorker binds workerID to conn. A previous connection of the same
// worker is closed.
func (cm *ConnectionManager) RegisterWorker(workerID string, conn primary.MessageConn) {
	cm.mu.Lock()
	prev, exists := cm.conns[workerID]
	cm.conns[workerID] = conn
	cm.mu.Unlock()

	if exists && prev != conn {
		cm.Logger.Warn("Replacing worker connection", "workerId", workerID)
		_ = prev.Close()
	}
}

// RemoveWorker unbinds workerID if it is still bound to conn
func (cm *ConnectionManager) RemoveWorker(workerID string, conn primary.MessageConn) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.conns[workerID] != conn {
		return false
	}
	delete(cm.conns, workerID)
	return true
}

// GetConnection returns the connection for a specific worker
func (cm *ConnectionManager) GetConnection(workerID string) (primary.MessageConn, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	conn, exists := cm.conns[workerID]
	return conn, exists
}

func (cm *ConnectionManager) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// CloseAll closes all worker connections
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for workerID, conn := range cm.conns {
		if err := conn.Close(); err != nil {
			cm.Logger.Error("Failed to close connection", "workerId", workerID, "error", err)
		}
	}
}
