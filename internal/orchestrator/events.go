package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType classifies run lifecycle events.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventRoundStarted  EventType = "round_started"
	EventTaskStarted   EventType = "task_started"
	EventTaskSucceeded EventType = "task_succeeded"
	EventTaskRetrying  EventType = "task_retrying"
	EventTaskFailed    EventType = "task_failed"
	EventTaskBlocked   EventType = "task_blocked"
	EventRunCompleted  EventType = "run_completed"
)

// Event is one entry in a run's lifecycle feed.
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Type      EventType `json:"type"`
	Round     int       `json:"round,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const streamPrefix = "agentops:run:"

// EventBus publishes run lifecycle events to a per-run Redis Stream so
// external observers can follow a run without polling the scheduler.
type EventBus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewEventBus creates a Redis-backed event bus.
func NewEventBus(redisURL string, logger *zap.Logger) (*EventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EventBus{rdb: rdb, logger: logger}, nil
}

// Publish appends an event to its run's stream.
func (b *EventBus) Publish(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := streamPrefix + ev.RunID
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published event",
		zap.String("run", ev.RunID),
		zap.String("task", ev.TaskID),
		zap.String("type", string(ev.Type)))
	return nil
}

// Subscribe follows a run's stream from the beginning. Cancel the
// context to stop; the returned channel is closed on exit.
func (b *EventBus) Subscribe(ctx context.Context, runID string) <-chan *Event {
	ch := make(chan *Event, 16)
	stream := streamPrefix + runID

	go func() {
		defer close(ch)
		lastID := "0"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev Event
					if json.Unmarshal([]byte(data), &ev) == nil {
						ch <- &ev
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *EventBus) Close() error {
	return b.rdb.Close()
}
