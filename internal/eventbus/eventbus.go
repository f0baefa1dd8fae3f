// Package eventbus publishes domain events (generation created, generation
// terminal, analysis created) to a durable Redis Stream and lets in-process
// subscribers consume them through consumer groups. It is the transport for
// the submission and status-poll workers: a generation created via the API
// is picked up for provider submission by reading from the stream rather
// than a direct in-process call, so submission keeps working across
// restarts and multiple worker processes.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Topic names used across the generation pipeline. The Topic* constants
// are fan-out event notifications; the Queue* constants are the durable
// task queue itself (process_generation/process_analysis) — both ride the
// same Stream+consumer-group machinery, just with different stream keys
// and consumer groups.
const (
	TopicGenerationCreated  = "genforge:events:generation_created"
	TopicGenerationTerminal = "genforge:events:generation_terminal"
	TopicAnalysisCreated    = "genforge:events:analysis_created"

	QueueGeneration = "genforge:queue:generation"
	QueueAnalysis   = "genforge:queue:analysis"
)

// EventJobCreated etc. are the event-envelope Type values carried on
// TopicGenerationCreated/Terminal, matching spec.md §4.10's minimum topic
// list (JOB_CREATED, JOB_STARTED, JOB_COMPLETED, JOB_FAILED, JOB_CANCELLED).
const (
	EventJobCreated   = "JOB_CREATED"
	EventJobStarted   = "JOB_STARTED"
	EventJobCompleted = "JOB_COMPLETED"
	EventJobFailed    = "JOB_FAILED"
	EventJobCancelled = "JOB_CANCELLED"
)

// TaskProcessGeneration/TaskProcessAnalysis are the queue-envelope Type
// values carried on QueueGeneration/QueueAnalysis.
const (
	TaskProcessGeneration = "process_generation"
	TaskProcessAnalysis   = "process_analysis"
)

// defaultGroup is the consumer group used by the single worker fleet.
const defaultGroup = "genforge-workers"

// Event is the envelope written to a stream entry.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Bus publishes and consumes events via Redis Streams.
type Bus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a Bus backed by the given Redis client.
func New(rdb *redis.Client, logger *slog.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger}
}

// Publish appends an event to the given topic stream.
func (b *Bus) Publish(ctx context.Context, topic string, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling event payload: %w", err)
	}

	envelope, err := json.Marshal(Event{Type: eventType, Payload: data})
	if err != nil {
		return fmt.Errorf("marshalling event envelope: %w", err)
	}

	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{"event": envelope},
	}).Result()
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Handler processes one decoded event. Returning an error leaves the stream
// entry unacknowledged; once it has been idle for a minute Subscribe claims
// it again, so it is redelivered to this or another consumer.
type Handler func(ctx context.Context, evt Event) error

// Subscribe ensures the consumer group exists and runs a blocking read loop,
// invoking handle for each delivered entry and acknowledging it on success.
// It returns when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic, consumer string, handle Handler) error {
	if err := b.ensureGroup(ctx, topic); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Reclaim entries left unacknowledged for over a minute (a failed
		// handler or a crashed consumer) so they are delivered again.
		claimed, _, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream: topic, Group: defaultGroup, Consumer: consumer,
			MinIdle: time.Minute, Start: "0-0", Count: 10,
		}).Result()
		if err == nil {
			for _, msg := range claimed {
				b.handle(ctx, topic, msg, handle)
			}
		}

		streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    defaultGroup,
			Consumer: consumer,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			b.logger.Error("reading event stream", "topic", topic, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.handle(ctx, topic, msg, handle)
			}
		}
	}
}

func (b *Bus) handle(ctx context.Context, topic string, msg redis.XMessage, handle Handler) {
	raw, _ := msg.Values["event"].(string)

	var evt Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		b.logger.Error("decoding event envelope, acking to drop poison message",
			"topic", topic, "id", msg.ID, "error", err)
		b.rdb.XAck(ctx, topic, defaultGroup, msg.ID)
		return
	}

	if err := handle(ctx, evt); err != nil {
		b.logger.Error("handling event, leaving unacked for redelivery",
			"topic", topic, "id", msg.ID, "type", evt.Type, "error", err)
		return
	}

	if err := b.rdb.XAck(ctx, topic, defaultGroup, msg.ID).Err(); err != nil {
		b.logger.Warn("acking event", "topic", topic, "id", msg.ID, "error", err)
	}
}

func (b *Bus) ensureGroup(ctx context.Context, topic string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, topic, defaultGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group for %s: %w", topic, err)
	}
	return nil
}
