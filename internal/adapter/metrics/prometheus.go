package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ secondary.MetricsRecorder = (*PrometheusRecorder)(nil)

const namespace = "zkboost"

var (
	durationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800}
	sizeBuckets     = prometheus.ExponentialBuckets(256, 4, 10)
	cycleBuckets    = prometheus.ExponentialBuckets(1000, 10, 9)
)

// PrometheusRecorder exports core observations on a private registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  *prometheus.GaugeVec
	jobsInFlight  *prometheus.GaugeVec
	executeTotal  *prometheus.CounterVec
	executeTime   *prometheus.HistogramVec
	executeCycles *prometheus.HistogramVec
	proveTotal    *prometheus.CounterVec
	proveTime     *prometheus.HistogramVec
	proofBytes    *prometheus.HistogramVec
	verifyTotal   *prometheus.CounterVec
	verifyTime    *prometheus.HistogramVec
	programs      prometheus.Gauge
	buildInfo     *prometheus.GaugeVec
	rejections    *prometheus.CounterVec
	reassignments prometheus.Counter
}

// NewPrometheusRecorder registers every collector on a fresh registry,
// together with the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"endpoint", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   durationBuckets,
		}, []string{"endpoint", "method"}),
		httpInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		}, []string{"endpoint"}),
		jobsInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently running a backend call",
		}, []string{"operation"}),
		executeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execute_total",
			Help:      "Total execute operations",
		}, []string{"program_id", "status"}),
		executeTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execute_duration_seconds",
			Help:      "Program execution time in seconds",
			Buckets:   durationBuckets,
		}, []string{"program_id"}),
		executeCycles: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execute_cycles_total",
			Help:      "Total cycle counts per execution",
			Buckets:   cycleBuckets,
		}, []string{"program_id"}),
		proveTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prove_total",
			Help:      "Total prove operations",
		}, []string{"program_id", "status"}),
		proveTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prove_duration_seconds",
			Help:      "Proof generation time in seconds",
			Buckets:   durationBuckets,
		}, []string{"program_id"}),
		proofBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prove_proof_bytes",
			Help:      "Generated proof sizes in bytes",
			Buckets:   sizeBuckets,
		}, []string{"program_id"}),
		verifyTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_total",
			Help:      "Total verify operations",
		}, []string{"program_id", "verified"}),
		verifyTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verify_duration_seconds",
			Help:      "Proof verification time in seconds",
			Buckets:   durationBuckets,
		}, []string{"program_id"}),
		programs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "programs_loaded",
			Help:      "Number of zkVM programs currently loaded",
		}),
		buildInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		}, []string{"version"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_rejections_total",
			Help:      "Requests rejected because a backend was at capacity",
		}, []string{"backend"}),
		reassignments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_reassignments_total",
			Help:      "Tasks moved to another worker after a dispatch failure",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

func outcome(state domain.JobState) string {
	switch state {
	case domain.JobStateCompleted:
		return "success"
	case domain.JobStateCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

func (r *PrometheusRecorder) ObserveOperation(ev domain.OperationEvent) {
	seconds := ev.Duration.Seconds()
	switch ev.Operation {
	case domain.OperationExecute:
		r.executeTotal.WithLabelValues(ev.ProgramID, outcome(ev.State)).Inc()
		if ev.Result != nil && ev.Result.Execution != nil {
			r.executeTime.WithLabelValues(ev.ProgramID).Observe(seconds)
			r.executeCycles.WithLabelValues(ev.ProgramID).Observe(float64(ev.Result.Execution.TotalNumCycles))
		}
	case domain.OperationProve:
		r.proveTotal.WithLabelValues(ev.ProgramID, outcome(ev.State)).Inc()
		if ev.Result != nil && ev.Result.Proof != nil {
			r.proveTime.WithLabelValues(ev.ProgramID).Observe(seconds)
			r.proofBytes.WithLabelValues(ev.ProgramID).Observe(float64(ev.Result.Proof.ProofSizeBytes))
		}
	case domain.OperationVerify:
		verified := outcome(ev.State)
		if ev.Result != nil && ev.Result.Verification != nil {
			verified = strconv.FormatBool(ev.Result.Verification.Verified)
			r.verifyTime.WithLabelValues(ev.ProgramID).Observe(seconds)
		}
		r.verifyTotal.WithLabelValues(ev.ProgramID, verified).Inc()
	}
}

func (r *PrometheusRecorder) JobStarted(op domain.Operation) {
	r.jobsInFlight.WithLabelValues(string(op)).Inc()
}

func (r *PrometheusRecorder) JobFinished(op domain.Operation) {
	r.jobsInFlight.WithLabelValues(string(op)).Dec()
}

func (r *PrometheusRecorder) RequestStarted(endpoint string) {
	r.httpInFlight.WithLabelValues(endpoint).Inc()
}

func (r *PrometheusRecorder) RequestFinished(endpoint, method string, status int, duration time.Duration) {
	r.httpInFlight.WithLabelValues(endpoint).Dec()
	r.httpRequests.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) BackpressureRejected(backend domain.BackendKind) {
	r.rejections.WithLabelValues(string(backend)).Inc()
}

func (r *PrometheusRecorder) WorkerReassigned() {
	r.reassignments.Inc()
}

func (r *PrometheusRecorder) SetProgramsLoaded(count int) {
	r.programs.Set(float64(count))
}

func (r *PrometheusRecorder) SetBuildInfo(version string) {
	r.buildInfo.WithLabelValues(version).Set(1)
}
