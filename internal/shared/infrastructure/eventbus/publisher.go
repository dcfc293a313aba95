package eventbus

import (
	"context"
	"log/slog"
)

// Publisher sends event envelopes to a message broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// NoopPublisher drops every message. Used when no broker is configured
// and no local consumer needs the events.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that only logs at debug level.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.logger.DebugContext(ctx, "noop publish", "routing_key", routingKey, "size", len(payload))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }

var (
	_ Publisher = (*NoopPublisher)(nil)
	_ Publisher = (*RabbitMQPublisher)(nil)
	_ Publisher = (*InProcessEventBus)(nil)
)
