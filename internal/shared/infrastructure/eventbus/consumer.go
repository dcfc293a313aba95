package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/google/uuid"
)

// EventConsumer handles events for a set of routing keys.
type EventConsumer interface {
	EventTypes() []string
	Handle(ctx context.Context, event *ConsumedEvent) error
}

// ConsumedEvent is the envelope published for every outbox message.
type ConsumedEvent struct {
	EventID       uuid.UUID            `json:"event_id"`
	AggregateID   uuid.UUID            `json:"aggregate_id"`
	AggregateType string               `json:"aggregate_type"`
	RoutingKey    string               `json:"routing_key"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Payload       json.RawMessage      `json:"payload"`
	Metadata      domain.EventMetadata `json:"metadata"`
}

// Decode unmarshals the event body into v.
func (e *ConsumedEvent) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// ConsumerFunc adapts a function to EventConsumer.
type ConsumerFunc struct {
	Types   []string
	Handler func(ctx context.Context, event *ConsumedEvent) error
}

func (c ConsumerFunc) EventTypes() []string { return c.Types }

func (c ConsumerFunc) Handle(ctx context.Context, event *ConsumedEvent) error {
	return c.Handler(ctx, event)
}
