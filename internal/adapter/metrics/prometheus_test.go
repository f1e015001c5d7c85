package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/zkboost.net/internal/domain"
)

func TestObserveOperation_Prove(t *testing.T) {
	r := NewPrometheusRecorder()

	r.ObserveOperation(domain.OperationEvent{
		Operation: domain.OperationProve,
		ProgramID: "fibonacci",
		State:     domain.JobStateCompleted,
		Duration:  2 * time.Second,
		Result:    &domain.JobResult{Proof: domain.NewProofResult(make([]byte, 1024), 2*time.Second)},
	})
	r.ObserveOperation(domain.OperationEvent{
		Operation: domain.OperationProve,
		ProgramID: "fibonacci",
		State:     domain.JobStateFailed,
		Failure:   &domain.JobFailure{Kind: domain.KindTimeout},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.proveTotal.WithLabelValues("fibonacci", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.proveTotal.WithLabelValues("fibonacci", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.proofBytes))
}

func TestObserveOperation_VerifyAndExecute(t *testing.T) {
	r := NewPrometheusRecorder()

	r.ObserveOperation(domain.OperationEvent{
		Operation: domain.OperationVerify,
		ProgramID: "fibonacci",
		State:     domain.JobStateCompleted,
		Result:    &domain.JobResult{Verification: domain.Rejected("bad mac")},
	})
	r.ObserveOperation(domain.OperationEvent{
		Operation: domain.OperationExecute,
		ProgramID: "fibonacci",
		State:     domain.JobStateCompleted,
		Result:    &domain.JobResult{Execution: &domain.ExecutionResult{TotalNumCycles: 5000}},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.verifyTotal.WithLabelValues("fibonacci", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.executeTotal.WithLabelValues("fibonacci", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.executeCycles))
}

func TestGaugesAndHandler(t *testing.T) {
	r := NewPrometheusRecorder()
	r.SetProgramsLoaded(3)
	r.SetBuildInfo("1.2.3")
	r.RequestStarted("/prove")
	r.RequestFinished("/prove", "POST", 200, 10*time.Millisecond)
	r.JobStarted(domain.OperationProve)
	r.BackpressureRejected(domain.BackendMock)
	r.WorkerReassigned()

	assert.Equal(t, 3.0, testutil.ToFloat64(r.programs))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.httpInFlight.WithLabelValues("/prove")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsInFlight.WithLabelValues("prove")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `zkboost_programs_loaded 3`)
	assert.Contains(t, text, `zkboost_build_info{version="1.2.3"} 1`)
	assert.Contains(t, text, `zkboost_http_requests_total{endpoint="/prove",method="POST",status="200"} 1`)
	assert.Contains(t, text, `zkboost_backpressure_rejections_total{backend="mock"} 1`)
	assert.Contains(t, text, `zkboost_worker_reassignments_total 1`)
}
