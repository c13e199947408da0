package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"go.uber.org/zap"
)

const subscriberBuffer = 256

// ErrClosed is returned when subscribing to a closed bus
var ErrClosed = errors.New("event bus closed")

// EventBus implements ports.EventBus in process. Every subscriber of a
// topic sees every event published after it subscribed, in publish order.
type EventBus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]map[int]*subscriber
	nextID      int
	closed      bool
}

type subscriber struct {
	events chan delivery
	done   chan struct{}
}

type delivery struct {
	ctx   context.Context
	event domain.Event
}

var _ ports.EventBus = (*EventBus)(nil)

// NewEventBus creates a new in-memory event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		logger:      logger,
		subscribers: make(map[string]map[int]*subscriber),
	}
}

// Publish queues event for every subscriber of topic
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	subs := make([]*subscriber, 0, len(e.subscribers[topic]))
	for _, sub := range e.subscribers[topic] {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- delivery{ctx: ctx, event: event}:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers handler until ctx is cancelled or the bus is closed
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	id := e.nextID
	e.nextID++

	sub := &subscriber{
		events: make(chan delivery, subscriberBuffer),
		done:   make(chan struct{}),
	}
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[int]*subscriber)
	}
	e.subscribers[topic][id] = sub

	go e.deliver(topic, sub, handler)
	go func() {
		select {
		case <-ctx.Done():
			e.unsubscribe(topic, id)
		case <-sub.done:
		}
	}()

	return nil
}

// Close drops every subscription
func (e *EventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for topic, subs := range e.subscribers {
		for id, sub := range subs {
			close(sub.done)
			delete(subs, id)
		}
		delete(e.subscribers, topic)
	}
	e.closed = true
	return nil
}

func (e *EventBus) deliver(topic string, sub *subscriber, handler ports.EventHandler) {
	for {
		select {
		case d := <-sub.events:
			if err := handler(d.ctx, d.event); err != nil {
				e.logger.Warn("event handler failed",
					zap.String("topic", topic),
					zap.String("event_id", d.event.ID),
					zap.Error(err))
			}
		case <-sub.done:
			return
		}
	}
}

func (e *EventBus) unsubscribe(topic string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sub, ok := e.subscribers[topic][id]; ok {
		close(sub.done)
		delete(e.subscribers[topic], id)
	}
}
