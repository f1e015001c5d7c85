package http

// this is entry point of the http request handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/core/services/job"
	"gitlab.com/zkboost.net/internal/core/services/router"
	"gitlab.com/zkboost.net/internal/core/services/worker"
	"gitlab.com/zkboost.net/internal/handlers"
	"gitlab.com/zkboost.net/internal/handlers/jobs"
	"gitlab.com/zkboost.net/internal/handlers/proofs"
	"gitlab.com/zkboost.net/internal/handlers/workers"
)

type ServiceProvider struct {
	Router      router.IRouter
	Jobs        job.IJobManager
	Coordinator worker.IWorkerCoordinator
	Callbacks   secondary.ResultSinkFactory
	Metrics     secondary.MetricsRecorder

	// MetricsHandler serves /metrics; nil leaves the route out.
	MetricsHandler http.Handler

	// AdminAuth guards worker routes; nil leaves them open.
	AdminAuth primary.JWTService
}

type Server struct {
	router          *mux.Router
	Addr            string
	ServiceName     string
	ServiceProvider ServiceProvider
	Proofs          proofs.Config
	logger          primary.Logger
	srv             *http.Server
	listener        net.Listener
}

func NewServer(addr string, serviceName string, serviceProvider ServiceProvider, proofsCfg proofs.Config, logger primary.Logger) *Server {
	return &Server{
		Addr:            addr,
		ServiceName:     serviceName,
		ServiceProvider: serviceProvider,
		Proofs:          proofsCfg,
		logger:          logger,
	}
}

func (s *Server) Init() error {
	sp := s.ServiceProvider
	mw := &handlers.MiddlewareProvider{JWT: sp.AdminAuth, Metrics: sp.Metrics}

	r := mux.NewRouter()
	r.Use(mw.HTTPMetrics, mw.BodyLimit)

	proofs.NewProofHandler(sp.Router, sp.Jobs, sp.Callbacks, s.logger, s.Proofs).RegisterRoutes(r)
	jobs.NewJobHandler(sp.Jobs, sp.Callbacks, s.logger).RegisterRoutes(r)

	admin := r.NewRoute().Subrouter()
	admin.Use(mw.JWTMiddleware)
	workers.NewHandler(sp.Coordinator).Register(admin)

	if sp.MetricsHandler != nil {
		r.Handle("/metrics", sp.MetricsHandler).Methods(http.MethodGet)
	}

	s.router = r
	return nil
}

// Handler is the routed handler, available after Init
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("http server not initialised")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	s.listener = ln

	writeTimeout := jobs.MaxWait
	if s.Proofs.SyncWait > writeTimeout {
		writeTimeout = s.Proofs.SyncWait
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      writeTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Info("Server listening", "service", s.ServiceName, "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", "error", err)
		}
	}()
	return nil
}

// ListenAddr is the bound address, empty before Start
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down http server...")
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
