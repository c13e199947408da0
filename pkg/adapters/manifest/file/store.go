package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aescanero/gasrunner/pkg/ports"
)

// Entry is one deployed object. Type is the object's type name without
// its package address, or "package" for the package itself.
type Entry struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Store resolves names from a manifest file read once at construction
type Store struct {
	path string
	ids  map[string]string
}

var _ ports.ManifestStore = (*Store)(nil)

// Open reads and indexes the manifest at path
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	return New(path, entries), nil
}

// New indexes entries in memory. Later entries win on duplicate types.
func New(path string, entries []Entry) *Store {
	ids := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Type == "" || e.ID == "" {
			continue
		}
		ids[e.Type] = e.ID
	}
	return &Store{path: path, ids: ids}
}

// Resolve returns the id recorded for name
func (s *Store) Resolve(ctx context.Context, name string) (string, bool, error) {
	id, ok := s.ids[name]
	return id, ok, nil
}

// Len returns the number of indexed names
func (s *Store) Len() int {
	return len(s.ids)
}

// Write stores entries at path in the format Open reads
func Write(path string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
