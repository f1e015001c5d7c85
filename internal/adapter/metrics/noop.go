package metrics

import (
	"time"

	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ secondary.MetricsRecorder = NoopRecorder{}

// NoopRecorder discards every observation.
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperation(domain.OperationEvent) {}
func (NoopRecorder) JobStarted(domain.Operation) {}
func (NoopRecorder) JobFinished(domain.Operation) {}
func (NoopRecorder) RequestStarted(string) {}
func (NoopRecorder) RequestFinished(string, string, int, time.Duration) {}
func (NoopRecorder) BackpressureRejected(domain.BackendKind) {}
func (NoopRecorder) WorkerReassigned() {}
func (NoopRecorder) SetProgramsLoaded(int) {}
func (NoopRecorder) SetBuildInfo(string) {}
