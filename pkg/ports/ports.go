package ports

import (
	"context"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
)

// LedgerGateway performs the network round trips to the ledger.
// Implementations must be safe for concurrent use.
type LedgerGateway interface {
	// Submit executes a signed transaction. Effects may be returned
	// together with an error when the ledger executed the transaction
	// but aborted it.
	Submit(ctx context.Context, tx *domain.Transaction) (*domain.Effects, error)

	// GasCoins lists the gas coins owned by owner
	GasCoins(ctx context.Context, owner string) ([]domain.ResourceHandle, error)

	// Objects returns the current references of the given objects
	Objects(ctx context.Context, ids []string) ([]domain.ObjectRef, error)
}

// Signer signs transaction bytes on behalf of one address
type Signer interface {
	Address() string
	Sign(ctx context.Context, data []byte) ([]byte, error)
}

// ManifestStore resolves symbolic names to deployed object ids.
// A missing name is reported with found=false, not an error.
type ManifestStore interface {
	Resolve(ctx context.Context, name string) (id string, found bool, err error)
}

// EventHandler handles one event
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes batch events
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// BatchStorage persists batch states
type BatchStorage interface {
	SaveBatch(ctx context.Context, state *domain.BatchState) error
	GetBatch(ctx context.Context, batchID string) (*domain.BatchState, error)
	DeleteBatch(ctx context.Context, batchID string) error
	ListBatches(ctx context.Context) ([]string, error)
}

// MetricsCollector records orchestrator metrics
type MetricsCollector interface {
	RecordSubmission(mode, status string, duration time.Duration)
	RecordRetry(mode, reason string)
	RecordReplenishment(status string, coins int, duration time.Duration)
	RecordHandleRemoved(reason string)
	RecordPoolStatus(free, checkedOut int, freeBalance, sourceBalance uint64)
	RecordLaneStatus(idle, busy int)
	RecordBatchSubmitted(mode string)
	RecordBatchCompleted(status string, duration time.Duration)
	SetQueueDepth(queue string, depth int)
}
