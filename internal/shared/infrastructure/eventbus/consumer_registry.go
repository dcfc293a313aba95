package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ConsumerRegistry maps routing keys to consumers. A key ending in ".#"
// matches every routing key with that prefix, as on a topic exchange.
type ConsumerRegistry struct {
	consumers map[string][]EventConsumer
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewConsumerRegistry creates an empty registry.
func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{
		consumers: make(map[string][]EventConsumer),
		logger:    logger,
	}
}

// Register adds a consumer for its declared routing keys.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range consumer.EventTypes() {
		r.consumers[key] = append(r.consumers[key], consumer)
		r.logger.Debug("registered consumer", "routing_key", key)
	}
}

// GetConsumers returns consumers bound to the routing key, exact bindings first.
func (r *ConsumerRegistry) GetConsumers(routingKey string) []EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := append([]EventConsumer(nil), r.consumers[routingKey]...)
	for pattern, consumers := range r.consumers {
		if prefix, ok := strings.CutSuffix(pattern, ".#"); ok && strings.HasPrefix(routingKey, prefix+".") {
			matched = append(matched, consumers...)
		}
	}
	return matched
}

// GetAllEventTypes returns every bound routing key, sorted.
func (r *ConsumerRegistry) GetAllEventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.consumers))
	for t := range r.consumers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatch delivers the event to every matching consumer. A failing
// consumer does not stop delivery to the rest; all errors are joined.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	consumers := r.GetConsumers(event.RoutingKey)
	if len(consumers) == 0 {
		r.logger.DebugContext(ctx, "no consumers for routing key", "routing_key", event.RoutingKey)
		return nil
	}

	var errs []error
	for _, consumer := range consumers {
		if err := consumer.Handle(ctx, event); err != nil {
			r.logger.ErrorContext(ctx, "consumer failed to handle event",
				"routing_key", event.RoutingKey,
				"event_id", event.EventID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ConsumerCount returns the number of registered bindings.
func (r *ConsumerRegistry) ConsumerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, consumers := range r.consumers {
		count += len(consumers)
	}
	return count
}
