package defs

import "time"

// Protocol constants
const (
	MagicNumber uint16 = 0xCAFE

	// Message types
	MsgWorkerRegister  byte = 0x01
	MsgWorkerHeartbeat byte = 0x02
	MsgJobCancel       byte = 0x03
	MsgJobAssign       byte = 0x04
	MsgJobResult       byte = 0x05
	MsgPing            byte = 0x06
	MsgError           byte = 0x07
	MsgPong            byte = 0x08

	HeaderSize = 8

	// MaxPayload bounds a single frame. Inputs are capped at 400 MiB and
	// travel base64 encoded inside JSON.
	MaxPayload = 600 << 20

	// Configuration constants
	InitialRegistrationTimeout = 30 * time.Second
	ConnectionRetryDelay       = 1 * time.Second
	WriteTimeout               = 10 * time.Second
	HeartbeatInterval          = 5 * time.Second
)
