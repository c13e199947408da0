package domain

import "time"

// ExecutionMode selects the executor a batch runs on
type ExecutionMode string

const (
	ExecutionModeSerial   ExecutionMode = "serial"
	ExecutionModeParallel ExecutionMode = "parallel"
)

// BatchStatus is the lifecycle status of a batch run
type BatchStatus string

const (
	BatchStatusSubmitted BatchStatus = "submitted"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// IsTerminal reports whether no further transitions happen
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusCancelled
}

// BatchState is the persisted state of one batch run
type BatchState struct {
	BatchID     string             `json:"batch_id"`
	Name        string             `json:"name,omitempty"`
	Mode        ExecutionMode      `json:"mode"`
	Status      BatchStatus        `json:"status"`
	Requests    []OperationRequest `json:"requests"`
	Outcomes    []ExecutionOutcome `json:"outcomes,omitempty"`
	Summary     Summary            `json:"summary"`
	Error       string             `json:"error,omitempty"`
	SubmittedAt time.Time          `json:"submitted_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// EventType names an orchestrator event
type EventType string

const (
	EventTypeBatchSubmitted   EventType = "batch.submitted"
	EventTypeBatchStarted     EventType = "batch.started"
	EventTypeBatchCompleted   EventType = "batch.completed"
	EventTypeBatchFailed      EventType = "batch.failed"
	EventTypeBatchCancelled   EventType = "batch.cancelled"
	EventTypeRequestCompleted EventType = "request.completed"
	EventTypeRequestFailed    EventType = "request.failed"
)

// Event is published on the event bus for every batch transition and outcome
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	BatchID   string                 `json:"batch_id"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
