package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "gasrunner:batch:"

// BatchStorage implements ports.BatchStorage using Redis
type BatchStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

var _ ports.BatchStorage = (*BatchStorage)(nil)

// NewBatchStorage creates a new Redis batch storage. A zero ttl keeps
// batches until they are deleted.
func NewBatchStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *BatchStorage {
	return &BatchStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveBatch saves batch state as JSON with the configured TTL
func (s *BatchStorage) SaveBatch(ctx context.Context, state *domain.BatchState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	if err := s.client.Set(ctx, batchKey(state.BatchID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}

	s.logger.Debug("batch saved",
		zap.String("batch_id", state.BatchID),
		zap.String("status", string(state.Status)))

	return nil
}

// GetBatch loads batch state
func (s *BatchStorage) GetBatch(ctx context.Context, batchID string) (*domain.BatchState, error) {
	data, err := s.client.Get(ctx, batchKey(batchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	var state domain.BatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch: %w", err)
	}

	return &state, nil
}

// DeleteBatch deletes batch state
func (s *BatchStorage) DeleteBatch(ctx context.Context, batchID string) error {
	if err := s.client.Del(ctx, batchKey(batchID)).Err(); err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}

	s.logger.Debug("batch deleted", zap.String("batch_id", batchID))
	return nil
}

// ListBatches returns every stored batch id, sorted
func (s *BatchStorage) ListBatches(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(keyPrefix) {
			ids = append(ids, key[len(keyPrefix):])
		}
	}
	sort.Strings(ids)

	return ids, nil
}

func batchKey(batchID string) string {
	return keyPrefix + batchID
}
