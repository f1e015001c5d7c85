package secondary

import (
	"time"

	"gitlab.com/zkboost.net/internal/domain"
)

// MetricsRecorder observes the core. It never feeds back into routing.
type MetricsRecorder interface {
	ObserveOperation(ev domain.OperationEvent)
	JobStarted(op domain.Operation)
	JobFinished(op domain.Operation)
	RequestStarted(endpoint string)
	RequestFinished(endpoint, method string, status int, duration time.Duration)
	BackpressureRejected(backend domain.BackendKind)
	WorkerReassigned()
	SetProgramsLoaded(count int)
	SetBuildInfo(version string)
}
