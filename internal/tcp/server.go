package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/services/worker"
	"gitlab.com/zkboost.net/internal/tcp/connectionmanager"
	"gitlab.com/zkboost.net/internal/tcp/defs"
	"gitlab.com/zkboost.net/internal/tcp/handlers"
)

// TCPServer handles TCP connections from workers
type TCPServer struct {
	address       string
	coordinator   worker.IWorkerCoordinator
	logger        primary.Logger
	listener      net.Listener
	connectionMgr *connectionmanager.ConnectionManager
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	handlers      map[byte]primary.MessageHandler
}

// TCPServerOption configures a TCPServer
type TCPServerOption func(*TCPServer)

// WithAddress sets the server address
func WithAddress(address string) TCPServerOption {
	return func(s *TCPServer) {
		s.address = address
	}
}

// NewTCPServer creates a new TCP server. connectionMgr is shared with the
// transport the coordinator publishes through.
func NewTCPServer(
	coordinator worker.IWorkerCoordinator,
	connectionMgr *connectionmanager.ConnectionManager,
	logger primary.Logger,
	options ...TCPServerOption,
) *TCPServer {
	server := &TCPServer{
		address:       ":9000", // Default address
		coordinator:   coordinator,
		logger:        logger,
		connectionMgr: connectionMgr,
		stopCh:        make(chan struct{}),
	}

	for _, option := range options {
		option(server)
	}

	server.setupMessageHandlers()
	return server
}

// setupMessageHandlers registers all message handlers
func (s *TCPServer) setupMessageHandlers() {
	s.handlers = map[byte]primary.MessageHandler{
		defs.MsgWorkerRegister:  &handlers.WorkerRegistrationHandler{Coordinator: s.coordinator, ConnectionMgr: s.connectionMgr, Logger: s.logger},
		defs.MsgWorkerHeartbeat: &handlers.WorkerHeartbeatHandler{Coordinator: s.coordinator, Logger: s.logger},
		defs.MsgJobResult:       &handlers.JobResultHandler{Coordinator: s.coordinator, Logger: s.logger},
		defs.MsgPong:            &handlers.PongHandler{Coordinator: s.coordinator},
	}
}

// Start starts the TCP server
func (s *TCPServer) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}

	s.logger.Info("TCP server listening", "address", s.listener.Addr().String())

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Addr is the bound listener address, nil before Start
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every worker connection, then waits for
// connection goroutines until ctx expires
func (s *TCPServer) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				s.logger.Error("Failed to close listener", "error", err)
			}
		}
		s.connectionMgr.CloseAll()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TCPServer) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// acceptConnections accepts incoming connections
func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping() {
				return
			}
			s.logger.Error("Failed to accept connection", "error", err)
			time.Sleep(defs.ConnectionRetryDelay) // Avoid tight loop on error
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(connectionmanager.Wrap(conn))
	}
}

// handleConnection handles a single worker connection
func (s *TCPServer) handleConnection(conn *connectionmanager.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	if s.stopping() {
		return
	}

	// Set initial timeout for registration
	_ = conn.SetReadDeadline(time.Now().Add(defs.InitialRegistrationTimeout))

	var workerID string
	defer func() {
		if workerID != "" && s.connectionMgr.RemoveWorker(workerID, conn) {
			s.logger.Info("Worker disconnected", "workerId", workerID)
			s.coordinator.WorkerLost(context.Background(), workerID)
		}
	}()

	for {
		msgType, payload, err := defs.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !s.stopping() {
				s.logger.Error("Failed to read message", "workerId", workerID, "error", err)
			}
			return
		}

		handler, exists := s.handlers[msgType]
		if !exists {
			s.logger.Error("Unknown message type", "type", msgType)
			conn.SendError(1016, fmt.Sprintf("Unknown message type: %d", msgType))
			continue
		}

		if err := handler.HandleMessage(context.Background(), conn, payload, &workerID); err != nil {
			s.logger.Error("Error handling message", "type", msgType, "workerId", workerID, "error", err)
			return
		}

		// After successful registration, remove timeout
		if msgType == defs.MsgWorkerRegister {
			_ = conn.SetReadDeadline(time.Time{})
		}
	}
}
