package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// InProcessEventBus delivers envelopes synchronously to local consumers.
// It stands in for RabbitMQ in local mode.
type InProcessEventBus struct {
	registry *ConsumerRegistry
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewInProcessEventBus creates an in-process bus.
func NewInProcessEventBus(logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessEventBus{
		registry: NewConsumerRegistry(logger),
		logger:   logger,
	}
}

// RegisterConsumer binds a consumer to its routing keys.
func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.registry.Register(consumer)
}

// Publish decodes the envelope and dispatches it. Consumer failures are
// returned so the outbox schedules a retry, matching broker semantics.
// Malformed envelopes are logged and dropped since a retry cannot fix them.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	event := &ConsumedEvent{}
	if err := json.Unmarshal(payload, event); err != nil {
		b.logger.ErrorContext(ctx, "failed to unmarshal event envelope", "routing_key", routingKey, "error", err)
		return nil
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}

	start := time.Now()
	if err := b.registry.Dispatch(ctx, event); err != nil {
		return err
	}

	b.logger.DebugContext(ctx, "event dispatched",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close is a no-op.
func (b *InProcessEventBus) Close() error { return nil }

// Registry returns the underlying consumer registry.
func (b *InProcessEventBus) Registry() *ConsumerRegistry {
	return b.registry
}
