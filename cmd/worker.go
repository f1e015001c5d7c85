package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/zkboost.net/internal/adapter/backend/mock"
	"gitlab.com/zkboost.net/internal/adapter/backend/process"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
	logger2 "gitlab.com/zkboost.net/internal/global/logger"
	"gitlab.com/zkboost.net/internal/tcp/workerclient"
)

var (
	workerCoordinator     string
	workerID              string
	workerAddress         string
	workerCapacity        int
	workerBackend         string
	workerBinary          string
	workerMockProvingTime time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Join a coordinator as a cluster worker",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerCoordinator, "coordinator", "localhost:9000", "Coordinator TCP address")
	workerCmd.Flags().StringVar(&workerID, "id", "", "Worker id (random when empty)")
	workerCmd.Flags().StringVar(&workerAddress, "address", "", "Address reported to the coordinator")
	workerCmd.Flags().IntVar(&workerCapacity, "capacity", 1, "Concurrent assignments advertised")
	workerCmd.Flags().StringVar(&workerBackend, "backend", string(domain.BackendMock), "Local engine (mock|process)")
	workerCmd.Flags().StringVar(&workerBinary, "binary", "", "Engine binary for the process backend")
	workerCmd.Flags().DurationVar(&workerMockProvingTime, "mock-proving-time", mock.DefaultProvingTime, "Simulated proving time for the mock backend")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logger2.Logger

	var backend secondary.Backend
	switch domain.BackendKind(workerBackend) {
	case domain.BackendMock:
		backend = mock.New(mock.Config{ProvingTime: workerMockProvingTime})
	case domain.BackendProcess:
		if workerBinary == "" {
			return fmt.Errorf("--binary is required for the process backend")
		}
		backend = process.New(workerBinary, logger)
	default:
		return fmt.Errorf("unsupported worker backend %q", workerBackend)
	}

	agent := workerclient.NewAgent(workerclient.Config{
		ID:         workerID,
		ServerAddr: workerCoordinator,
		Address:    workerAddress,
		Capacity:   workerCapacity,
	}, backend, logger)

	logger.Info("Starting worker", "workerId", agent.ID(), "coordinator", workerCoordinator, "backend", backend.Kind())
	err := agent.Run(ctx)
	logger.Info("Worker stopped", "workerId", agent.ID())
	return err
}
