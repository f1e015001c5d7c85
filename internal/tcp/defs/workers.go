package defs

// Protocol data structures
type (
	// WorkerRegistrationData represents the data sent during worker registration
	WorkerRegistrationData struct {
		WorkerID string `json:"worker_id"`
		Backend  string `json:"backend"`
		Capacity int    `json:"capacity"`
		Address  string `json:"ip_address"`
	}

	// WorkerHeartbeatData represents the data sent during worker heartbeat
	WorkerHeartbeatData struct {
		WorkerID  string `json:"worker_id"`
		Load      int    `json:"load"`
		Timestamp int64  `json:"timestamp"`
	}

	// PingData is echoed back unchanged in the pong
	PingData struct {
		Timestamp int64 `json:"timestamp"`
	}

	// ErrorData represents data sent with error responses
	ErrorData struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)
