package coinlock

import (
	"errors"
	"fmt"
	"sync"
)

// ErrHeld is returned when a coin is claimed by another holder
var ErrHeld = errors.New("gas coin held by another component")

// Registry tracks coin claims for one address
type Registry struct {
	mu      sync.Mutex
	holders map[string]string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{holders: make(map[string]string)}
}

var (
	ownersMu sync.Mutex
	owners   = make(map[string]*Registry)
)

// ForOwner returns the process-wide registry for owner
func ForOwner(owner string) *Registry {
	ownersMu.Lock()
	defer ownersMu.Unlock()

	r, ok := owners[owner]
	if !ok {
		r = New()
		owners[owner] = r
	}
	return r
}

// Claim reserves coinID for holder. Claiming a coin the holder already
// holds succeeds.
func (r *Registry) Claim(coinID, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.holders[coinID]; ok && cur != holder {
		return fmt.Errorf("%w: %s held by %s", ErrHeld, coinID, cur)
	}
	r.holders[coinID] = holder
	return nil
}

// Holder returns the component holding coinID
func (r *Registry) Holder(coinID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.holders[coinID]
	return h, ok
}

// Release drops holder's claim on coinID
func (r *Registry) Release(coinID, holder string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holders[coinID] == holder {
		delete(r.holders, coinID)
	}
}

// ReleaseAll drops every claim of holder and returns how many there were
func (r *Registry) ReleaseAll(holder string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, h := range r.holders {
		if h == holder {
			delete(r.holders, id)
			n++
		}
	}
	return n
}
