package workerport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

var _ secondary.WorkerRepository = (*WorkerRepository)(nil)

const (
	workerKeyPrefix  = "zkboost:worker:"
	workerExpiration = 5 * time.Minute
)

// WorkerRepository mirrors worker descriptors into Redis so other
// processes can inspect the pool. Entries expire if the coordinator stops
// refreshing them.
type WorkerRepository struct {
	redisClient *redis.Client
	logger      primary.Logger
}

// NewWorkerRepository creates a new Redis worker repository
func NewWorkerRepository(redisClient *redis.Client, logger primary.Logger) *WorkerRepository {
	return &WorkerRepository{
		redisClient: redisClient,
		logger:      logger,
	}
}

// SaveWorker saves worker information to Redis
func (r *WorkerRepository) SaveWorker(ctx context.Context, worker *domain.WorkerDescriptor) error {
	workerJSON, err := json.Marshal(worker)
	if err != nil {
		r.logger.Error("Failed to marshal worker info", "error", err)
		return fmt.Errorf("failed to marshal worker info: %w", err)
	}

	if err := r.redisClient.Set(ctx, workerKeyPrefix+worker.ID, workerJSON, workerExpiration).Err(); err != nil {
		r.logger.Error("Failed to save worker info", "workerId", worker.ID, "error", err)
		return fmt.Errorf("failed to save worker info: %w", err)
	}
	return nil
}

// RemoveWorker drops a worker that left the pool
func (r *WorkerRepository) RemoveWorker(ctx context.Context, workerID string) error {
	if err := r.redisClient.Del(ctx, workerKeyPrefix+workerID).Err(); err != nil {
		r.logger.Error("Failed to remove worker info", "workerId", workerID, "error", err)
		return fmt.Errorf("failed to remove worker info: %w", err)
	}
	return nil
}

// GetAllWorkers retrieves all worker information from Redis.
func (r *WorkerRepository) GetAllWorkers(ctx context.Context) ([]*domain.WorkerDescriptor, error) {
	var cursor uint64
	var workerKeys []string

	for {
		keys, next, err := r.redisClient.Scan(ctx, cursor, workerKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker keys: %w", err)
		}
		workerKeys = append(workerKeys, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	workers := make([]*domain.WorkerDescriptor, 0, len(workerKeys))
	if len(workerKeys) == 0 {
		return workers, nil
	}

	workerData, err := r.redisClient.MGet(ctx, workerKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve worker data: %w", err)
	}

	for _, data := range workerData {
		raw, ok := data.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var worker domain.WorkerDescriptor
		if err := json.Unmarshal([]byte(raw), &worker); err != nil {
			return nil, fmt.Errorf("failed to unmarshal worker data: %w", err)
		}
		workers = append(workers, &worker)
	}

	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return workers, nil
}
