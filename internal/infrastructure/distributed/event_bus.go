package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultChannel = "callrelay:events"
	publishTimeout = 2 * time.Second
)

// EventBus publishes lifecycle events on a Redis channel so other relay
// instances and external observers can follow them.
type EventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
	breaker    *circuitbreaker.CircuitBreaker

	// pubsub is owned by whichever of Subscribe and Close releases it first.
	mu     sync.Mutex
	pubsub *redis.PubSub
}

// NewEventBus creates a new event bus
func NewEventBus(
	client *redis.Client,
	instanceID string,
	channel string,
	logger *zap.SugaredLogger,
) *EventBus {
	if channel == "" {
		channel = DefaultChannel
	}
	eb := &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
	eb.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("event bus circuit changed", "from", from, "to", to)
	})
	return eb
}

var _ ports.EventPublisher = (*EventBus)(nil)

func (eb *EventBus) InstanceID() string {
	return eb.instanceID
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *domain.Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = eb.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return eb.client.Publish(ctx, eb.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"connection_id", event.ConnectionID,
		"session_id", event.SessionID,
	)

	return nil
}

// Subscribe calls handler for every event published by other instances until
// ctx is cancelled.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*domain.Event) error) error {
	eb.mu.Lock()
	if eb.pubsub != nil {
		eb.mu.Unlock()
		return fmt.Errorf("already subscribed")
	}
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	eb.pubsub = pubsub
	eb.mu.Unlock()

	defer func() {
		if err := eb.release(pubsub); err != nil {
			eb.logger.Warnw("failed to close subscription", "error", err)
		}
	}()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", eb.channel)
			}
			eb.dispatch(msg.Payload, handler)
		}
	}
}

func (eb *EventBus) dispatch(payload string, handler func(*domain.Event) error) {
	var event domain.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		eb.logger.Warnw("failed to unmarshal event",
			"error", err,
			"payload", payload,
		)
		return
	}

	// Skip events from this instance
	if event.InstanceID == eb.instanceID {
		return
	}

	if err := handler(&event); err != nil {
		eb.logger.Warnw("error handling event",
			"type", event.Type,
			"error", err,
		)
	}
}

// Close closes the event bus. Safe to call while Subscribe is running and
// more than once.
func (eb *EventBus) Close() error {
	eb.mu.Lock()
	pubsub := eb.pubsub
	eb.mu.Unlock()
	return eb.release(pubsub)
}

// release closes pubsub if it is still the active subscription.
func (eb *EventBus) release(pubsub *redis.PubSub) error {
	eb.mu.Lock()
	if pubsub == nil || eb.pubsub != pubsub {
		eb.mu.Unlock()
		return nil
	}
	eb.pubsub = nil
	eb.mu.Unlock()
	return pubsub.Close()
}

func (eb *EventBus) subscribed() bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.pubsub != nil
}

// LogPublisher is the EventPublisher used when Redis is disabled. It only
// records events at debug level.
type LogPublisher struct {
	instanceID string
	logger     *zap.SugaredLogger
}

func NewLogPublisher(instanceID string, logger *zap.SugaredLogger) *LogPublisher {
	return &LogPublisher{instanceID: instanceID, logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event *domain.Event) error {
	event.InstanceID = p.instanceID
	event.Timestamp = time.Now()
	p.logger.Debugw("lifecycle event",
		"type", event.Type,
		"connection_id", event.ConnectionID,
		"room", event.Room,
		"session_id", event.SessionID,
		"reason", event.Reason,
	)
	return nil
}
