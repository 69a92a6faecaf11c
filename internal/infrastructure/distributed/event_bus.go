package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/pkg/batch"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type EventType string

const (
	EventSessionCreated EventType = "session.created"
	EventQoEUpdated     EventType = "qoe.updated"
)

// Event is what edge instances exchange over the shared channel.
type Event struct {
	Type         EventType        `json:"type"`
	InstanceID   string           `json:"instance_id"`
	Timestamp    time.Time        `json:"timestamp"`
	SessionID    domain.SessionID `json:"session_id"`
	ContentID    string           `json:"content_id,omitempty"`
	EdgeLocation string           `json:"edge_location,omitempty"`
	QoEScore     float64          `json:"qoe_score,omitempty"`
}

type BusConfig struct {
	Channel       string
	BatchSize     int
	BatchInterval time.Duration
}

// EventBus publishes session events to Redis pub/sub. Publishes are queued and
// sent in pipelined batches so request paths never wait on Redis.
type EventBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.SugaredLogger
	batcher    *batch.Batcher[*Event]
	now        func() time.Time
}

func NewEventBus(client *redis.Client, instanceID string, cfg BusConfig, logger *zap.SugaredLogger) *EventBus {
	eb := &EventBus{
		client:     client,
		channel:    cfg.Channel,
		instanceID: instanceID,
		logger:     logger,
		now:        time.Now,
	}
	eb.batcher = batch.New[*Event](cfg.BatchSize, cfg.BatchInterval, eb.publishBatch,
		batch.WithErrorHandler[*Event](func(err error, dropped int) {
			logger.Warnw("failed to publish event batch", "error", err, "dropped", dropped)
		}),
	)
	return eb
}

func (eb *EventBus) publishBatch(ctx context.Context, events []*Event) error {
	_, err := eb.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			pipe.Publish(ctx, eb.channel, data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish events: %w", err)
	}

	eb.logger.Debugw("published events", "count", len(events), "channel", eb.channel)
	return nil
}

func (eb *EventBus) enqueue(ev *Event) error {
	ev.InstanceID = eb.instanceID
	ev.Timestamp = eb.now()
	if !eb.batcher.Add(ev) {
		return fmt.Errorf("event bus is closed")
	}
	return nil
}

func (eb *EventBus) PublishSessionCreated(ctx context.Context, session *domain.Session) error {
	return eb.enqueue(&Event{
		Type:         EventSessionCreated,
		SessionID:    session.ID,
		ContentID:    session.ContentID,
		EdgeLocation: session.EdgeLocation,
	})
}

func (eb *EventBus) PublishQoEUpdated(ctx context.Context, id domain.SessionID, score float64) error {
	return eb.enqueue(&Event{
		Type:      EventQoEUpdated,
		SessionID: id,
		QoEScore:  score,
	})
}

// Subscribe delivers events from other instances to handler until ctx is done.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// Close flushes queued events.
// Close publishes whatever is still buffered and stops the batcher.
func (eb *EventBus) Close() error {
	if n := eb.batcher.PendingCount(); n > 0 {
		eb.logger.Debugw("flushing buffered events on close", "count", n)
	}
	eb.batcher.Stop()
	return nil
}

// NopPublisher is used when no shared bus is configured.
type NopPublisher struct{}

func (NopPublisher) PublishSessionCreated(context.Context, *domain.Session) error { return nil }

func (NopPublisher) PublishQoEUpdated(context.Context, domain.SessionID, float64) error { return nil }
