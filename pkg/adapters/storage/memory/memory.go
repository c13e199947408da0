package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
)

// BatchStorage implements ports.BatchStorage using an in-memory map.
// States are stored as JSON so callers never share memory with the store.
type BatchStorage struct {
	batches map[string][]byte
	mu      sync.RWMutex
}

var _ ports.BatchStorage = (*BatchStorage)(nil)

// NewBatchStorage creates a new in-memory batch storage
func NewBatchStorage() *BatchStorage {
	return &BatchStorage{
		batches: make(map[string][]byte),
	}
}

// SaveBatch stores a copy of state
func (s *BatchStorage) SaveBatch(ctx context.Context, state *domain.BatchState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches[state.BatchID] = data
	return nil
}

// GetBatch returns a copy of the stored state
func (s *BatchStorage) GetBatch(ctx context.Context, batchID string) (*domain.BatchState, error) {
	s.mu.RLock()
	data, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}

	var state domain.BatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch: %w", err)
	}
	return &state, nil
}

// DeleteBatch removes a batch
func (s *BatchStorage) DeleteBatch(ctx context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.batches, batchID)
	return nil
}

// ListBatches returns every stored batch id, sorted
func (s *BatchStorage) ListBatches(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.batches))
	for id := range s.batches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
