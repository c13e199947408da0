package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamPrefix = "gasrunner:events:"

// StreamsEventBus implements ports.EventBus using Redis Streams.
//
// With a consumer group, subscribers in the group share the stream and
// acknowledge what they handle. Without one, every subscriber reads every
// event published after it subscribed.
type StreamsEventBus struct {
	client        *redis.Client
	logger        *zap.Logger
	consumerGroup string
	consumerName  string
	maxLen        int64
	block         time.Duration
}

var _ ports.EventBus = (*StreamsEventBus)(nil)

// NewStreamsEventBus creates a new Redis Streams event bus. maxLen caps
// each stream approximately; zero leaves streams untrimmed.
func NewStreamsEventBus(client *redis.Client, consumerGroup, consumerName string, maxLen int64, logger *zap.Logger) *StreamsEventBus {
	return &StreamsEventBus{
		client:        client,
		logger:        logger,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		maxLen:        maxLen,
		block:         time.Second,
	}
}

// Publish appends an event to the topic's stream
func (e *StreamsEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	streamKey := getStreamKey(topic)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"type":     string(event.Type),
			"batch_id": event.BatchID,
			"data":     string(data),
		},
	}
	if e.maxLen > 0 {
		args.MaxLen = e.maxLen
		args.Approx = true
	}

	if _, err := e.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	e.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("batch_id", event.BatchID),
		zap.String("stream", streamKey))

	return nil
}

// Subscribe reads the topic's stream until ctx is cancelled
func (e *StreamsEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	streamKey := getStreamKey(topic)

	if e.consumerGroup != "" {
		err := e.client.XGroupCreateMkStream(ctx, streamKey, e.consumerGroup, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group: %w", err)
		}

		e.logger.Info("subscribed to event stream",
			zap.String("stream", streamKey),
			zap.String("consumer_group", e.consumerGroup),
			zap.String("consumer", e.consumerName))

		go e.readGroup(ctx, streamKey, handler)
		return nil
	}

	last, err := e.lastID(ctx, streamKey)
	if err != nil {
		return err
	}

	e.logger.Debug("subscribed to event stream",
		zap.String("stream", streamKey),
		zap.String("from", last))

	go e.readBroadcast(ctx, streamKey, last, handler)
	return nil
}

// Close is a no-op; the Redis client is closed by its owner
func (e *StreamsEventBus) Close() error {
	return nil
}

func (e *StreamsEventBus) lastID(ctx context.Context, streamKey string) (string, error) {
	msgs, err := e.client.XRevRangeN(ctx, streamKey, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read stream tail: %w", err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func (e *StreamsEventBus) readBroadcast(ctx context.Context, streamKey, last string, handler ports.EventHandler) {
	for ctx.Err() == nil {
		streams, err := e.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, last},
			Count:   100,
			Block:   e.block,
		}).Result()
		if err != nil {
			if !e.readFailed(ctx, streamKey, err) {
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				last = message.ID
				e.handle(ctx, streamKey, message, handler)
			}
		}
	}
}

func (e *StreamsEventBus) readGroup(ctx context.Context, streamKey string, handler ports.EventHandler) {
	for ctx.Err() == nil {
		streams, err := e.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    e.consumerGroup,
			Consumer: e.consumerName,
			Streams:  []string{streamKey, ">"},
			Count:    10,
			Block:    e.block,
		}).Result()
		if err != nil {
			if !e.readFailed(ctx, streamKey, err) {
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				if !e.handle(ctx, streamKey, message, handler) {
					continue
				}
				if err := e.client.XAck(ctx, streamKey, e.consumerGroup, message.ID).Err(); err != nil {
					e.logger.Error("failed to acknowledge message",
						zap.String("stream", streamKey),
						zap.String("message_id", message.ID),
						zap.Error(err))
				}
			}
		}
	}
}

// readFailed logs a read error and reports whether reading should go on
func (e *StreamsEventBus) readFailed(ctx context.Context, streamKey string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, redis.Nil) {
		return true
	}
	if errors.Is(err, redis.ErrClosed) {
		return false
	}

	e.logger.Error("failed to read from stream",
		zap.String("stream", streamKey),
		zap.Error(err))

	select {
	case <-time.After(time.Second):
		return true
	case <-ctx.Done():
		return false
	}
}

// handle decodes and dispatches one message; it reports whether the
// handler accepted it
func (e *StreamsEventBus) handle(ctx context.Context, streamKey string, message redis.XMessage, handler ports.EventHandler) bool {
	data, ok := message.Values["data"].(string)
	if !ok {
		e.logger.Error("invalid message format",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID))
		return false
	}

	var event domain.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		e.logger.Error("failed to unmarshal event",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return false
	}

	if err := handler(ctx, event); err != nil {
		e.logger.Error("handler error",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return false
	}
	return true
}

func getStreamKey(topic string) string {
	return streamPrefix + topic
}
