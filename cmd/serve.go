package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"gitlab.com/zkboost.net/internal/adapter/backend/cluster"
	"gitlab.com/zkboost.net/internal/adapter/backend/external"
	"gitlab.com/zkboost.net/internal/adapter/backend/mock"
	"gitlab.com/zkboost.net/internal/adapter/backend/process"
	"gitlab.com/zkboost.net/internal/adapter/crypto"
	"gitlab.com/zkboost.net/internal/adapter/memory"
	"gitlab.com/zkboost.net/internal/adapter/metrics"
	"gitlab.com/zkboost.net/internal/adapter/postgres/jobrepository"
	"gitlab.com/zkboost.net/internal/adapter/redis/workerport"
	"gitlab.com/zkboost.net/internal/adapter/webhook"
	"gitlab.com/zkboost.net/internal/config"
	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/core/services/job"
	"gitlab.com/zkboost.net/internal/core/services/registry"
	"gitlab.com/zkboost.net/internal/core/services/router"
	"gitlab.com/zkboost.net/internal/core/services/worker"
	"gitlab.com/zkboost.net/internal/domain"
	logger2 "gitlab.com/zkboost.net/internal/global/logger"
	"gitlab.com/zkboost.net/internal/handlers/proofs"
	http2 "gitlab.com/zkboost.net/internal/http"
	"gitlab.com/zkboost.net/internal/schedulerengine"
	"gitlab.com/zkboost.net/internal/tcp"
	"gitlab.com/zkboost.net/internal/tcp/connectionmanager"
	"gitlab.com/zkboost.net/internal/tcp/publishers"
)

const shutdownTimeout = 30 * time.Second

var (
	serveConfigPath string
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the worker coordinator",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Program file (.yaml or .toml); defaults to $ZKBOOST_CONFIG")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port, overrides the program file")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logger2.Logger
	sysCfg := config.NewSystemConfig()
	if serveConfigPath == "" {
		serveConfigPath = sysCfg.ConfigPath
	}

	svcCfg, err := config.LoadServiceConfig(serveConfigPath)
	if err != nil {
		return err
	}
	if servePort > 0 {
		svcCfg.Port = servePort
	}
	logger.Info("Starting zkboost", "config", serveConfigPath, "programs", len(svcCfg.Programs), "version", sysCfg.Version)

	loader := &config.ArtifactLoader{Dir: sysCfg.ArtifactDir, Client: &http.Client{Timeout: 5 * time.Minute}, Logger: logger}
	programs, err := loader.Load(ctx, svcCfg.Programs)
	if err != nil {
		return err
	}

	recorder := metrics.NewPrometheusRecorder()
	recorder.SetBuildInfo(sysCfg.Version)

	// SECONDARY PORTS
	archive, closeArchive, err := setupJobArchive(ctx, sysCfg.PostgresConfig, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	workerStore, closeStore, err := setupWorkerStore(ctx, sysCfg.RedisConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	connectionMgr := connectionmanager.NewConnectionManager(logger)
	coordinator := worker.NewCoordinator(
		publishers.NewTransport(connectionMgr, logger),
		workerStore,
		recorder,
		logger,
		worker.Config{
			RetryCeiling:  svcCfg.Coordinator.RetryCeiling,
			ProbeInterval: svcCfg.Coordinator.ProbeInterval.Std(),
			ProbeTimeout:  svcCfg.Coordinator.ProbeTimeout.Std(),
			EvictAfter:    svcCfg.Coordinator.EvictAfter.Std(),
		},
	)
	defer coordinator.Close()
	if removed, err := coordinator.ClearStaleMirror(ctx); err != nil {
		logger.Warn("Failed to clear stale worker mirror", "error", err)
	} else if removed > 0 {
		logger.Info("Cleared stale worker mirror entries", "count", removed)
	}

	backends, limits, err := setupBackends(svcCfg, coordinator, logger)
	if err != nil {
		return err
	}
	reg, err := registry.Build(programs, backends)
	if err != nil {
		return err
	}

	//services
	jobs := job.NewJobManager(archive, recorder, logger, job.Config{Retention: svcCfg.JobRetention.Std()})
	proofRouter := router.NewRouter(reg, jobs, limits, recorder, logger)

	var signer primary.JWTService
	if sysCfg.JwtConfig.WebhookSecret != "" {
		signer = crypto.NewJWTService(sysCfg.JwtConfig.WebhookSecret)
	}
	callbacks := webhook.NewClient(signer, logger, webhook.Config{})

	sp := http2.ServiceProvider{
		Router:         proofRouter,
		Jobs:           jobs,
		Coordinator:    coordinator,
		Callbacks:      callbacks,
		Metrics:        recorder,
		MetricsHandler: recorder.Handler(),
	}
	if sysCfg.JwtConfig.Secret != "" {
		sp.AdminAuth = crypto.NewJWTService(sysCfg.JwtConfig.Secret)
	}

	//server
	tcpServer := tcp.NewTCPServer(coordinator, connectionMgr, logger, tcp.WithAddress(sysCfg.TCPAddr))
	httpServer := http2.NewServer(fmt.Sprintf(":%d", svcCfg.Port), "zkboost", sp, proofs.Config{
		SyncWait:       svcCfg.SyncWaitTimeout.Std(),
		DefaultWebhook: svcCfg.WebhookURL,
		Version:        sysCfg.Version,
	}, logger)
	if err := httpServer.Init(); err != nil {
		return err
	}
	if err := tcpServer.Start(); err != nil {
		return err
	}
	if err := httpServer.Start(ctx); err != nil {
		_ = tcpServer.Stop(context.Background())
		return err
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	engine := schedulerengine.NewSchedulerEngine(coordinator, jobs, logger, 0)
	engine.Start(bgCtx)

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", "error", err)
	}
	if err := tcpServer.Stop(shutdownCtx); err != nil {
		logger.Error("TCP server forced to shutdown", "error", err)
	}
	stopBackground()
	engine.Wait()
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		logger.Error("Jobs did not drain before shutdown", "error", err)
	}

	logger.Info("successfully shutdown server")
	return nil
}

// setupBackends builds an adapter for every kind the program file can
// serve. Mock and cluster are always present; process and external need
// their binary or endpoint.
func setupBackends(
	cfg *config.ServiceConfig,
	dispatcher cluster.Dispatcher,
	logger primary.Logger,
) (map[domain.BackendKind]secondary.Backend, map[domain.BackendKind]router.BackendConfig, error) {
	backends := make(map[domain.BackendKind]secondary.Backend, len(domain.BackendKinds))
	limits := make(map[domain.BackendKind]router.BackendConfig, len(domain.BackendKinds))

	for _, kind := range domain.BackendKinds {
		section, _ := cfg.Backend(kind)
		limits[kind] = router.BackendConfig{
			MaxConcurrent: section.MaxConcurrent,
			QueueDepth:    section.QueueDepth,
			Timeout:       section.Timeout.Std(),
		}

		switch kind {
		case domain.BackendMock:
			backends[kind] = mock.New(mock.Config{
				ProvingTime: section.MockProvingTime.Std(),
				ProofSize:   section.MockProofSize,
			})
		case domain.BackendProcess:
			if section.Binary != "" {
				backends[kind] = process.New(section.Binary, logger)
			}
		case domain.BackendExternal:
			if section.Endpoint != "" {
				b, err := external.New(external.Config{Endpoint: section.Endpoint, APIKey: section.APIKey}, logger)
				if err != nil {
					return nil, nil, fmt.Errorf("backends.%s: %w", kind, err)
				}
				backends[kind] = b
			}
		case domain.BackendCluster:
			backends[kind] = cluster.New(dispatcher)
		}
	}
	return backends, limits, nil
}

// setupJobArchive connects to PostgreSQL when DATABASE_URL is set and
// falls back to the in-memory archive otherwise.
func setupJobArchive(ctx context.Context, cfg *config.PostgresConfig, logger primary.Logger) (secondary.JobRepository, func(), error) {
	if cfg.Url == "" {
		logger.Info("Using in-memory job archive")
		return memory.NewJobArchive(), func() {}, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	repo := jobrepository.NewJobRepository(db, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("Using postgres job archive")
	return repo, func() { db.Close() }, nil
}

// setupWorkerStore mirrors the worker pool to Redis when REDIS_ADDR is set.
func setupWorkerStore(ctx context.Context, cfg *config.RedisConfig, logger primary.Logger) (secondary.WorkerRepository, func(), error) {
	if cfg.Url == "" {
		return memory.NewWorkerStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Url,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Mirroring workers to redis", "addr", cfg.Url)
	return workerport.NewWorkerRepository(client, logger), func() { client.Close() }, nil
}
