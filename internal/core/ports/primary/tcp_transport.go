package primary

import (
	"context"
	"net"
)

// MessageConn is a worker connection as seen by message handlers
type MessageConn interface {
	Send(ctx context.Context, msgType byte, v interface{}) error
	SendError(code int, message string)
	RemoteAddr() net.Addr
	Close() error
}

// MessageHandler defines an interface for handling different message types
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn MessageConn, payload []byte, workerID *string) error
}
