package domain

import "fmt"

// ObjectRef identifies one version of a ledger object
type ObjectRef struct {
	ObjectID string `json:"object_id"`
	Version  uint64 `json:"version"`
	Digest   string `json:"digest,omitempty"`
}

// String returns a compact id@version form
func (r ObjectRef) String() string {
	return fmt.Sprintf("%s@%d", r.ObjectID, r.Version)
}

// IsZero reports whether the reference is unset
func (r ObjectRef) IsZero() bool {
	return r.ObjectID == ""
}

// HandleState represents the lifecycle state of a gas coin handle
type HandleState string

const (
	HandleStateFree       HandleState = "free"
	HandleStateCheckedOut HandleState = "checked_out"
	HandleStateSpent      HandleState = "spent"
	HandleStateInvalid    HandleState = "invalid"
)

// ResourceHandle is a value snapshot of one fee-bearing gas coin.
//
// Handles are values: the pool owns the authoritative copy and callers
// only ever see snapshots. To return a coin after a submission, callers
// pass back a snapshot carrying the coin's new reference and balance.
type ResourceHandle struct {
	Ref     ObjectRef   `json:"ref"`
	Balance uint64      `json:"balance"`
	State   HandleState `json:"state"`
}

// ID returns the object id of the underlying coin
func (h ResourceHandle) ID() string {
	return h.Ref.ObjectID
}

// WithEffects returns a copy updated with the coin reference and balance
// reported by the ledger after a submission
func (h ResourceHandle) WithEffects(fx *Effects) ResourceHandle {
	if fx == nil || fx.GasObject.IsZero() {
		return h
	}
	h.Ref = fx.GasObject
	h.Balance = fx.FinalBalance
	return h
}
