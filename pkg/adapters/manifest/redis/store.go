package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/gasrunner/pkg/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the hash holding the manifest
const DefaultKey = "gasrunner:manifest"

// Store resolves names from a Redis hash
type Store struct {
	client *redis.Client
	key    string
}

var _ ports.ManifestStore = (*Store)(nil)

// NewStore creates a store over the hash at key
func NewStore(client *redis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

// Resolve returns the id recorded for name
func (s *Store) Resolve(ctx context.Context, name string) (string, bool, error) {
	id, err := s.client.HGet(ctx, s.key, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	return id, true, nil
}

// Put records ids by name
func (s *Store) Put(ctx context.Context, ids map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]interface{}, 0, 2*len(ids))
	for name, id := range ids {
		values = append(values, name, id)
	}
	if err := s.client.HSet(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
