package outbox

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// Message is a domain event waiting to be relayed to the broker.
type Message struct {
	ID               int64
	EventID          uuid.UUID
	AggregateType    string
	AggregateID      uuid.UUID
	RoutingKey       string
	Payload          json.RawMessage
	Metadata         json.RawMessage
	CreatedAt        time.Time
	PublishedAt      *time.Time
	NextRetryAt      *time.Time
	RetryCount       int
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// NewMessage serializes a domain event into an outbox message.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// NewMessages serializes a batch of events, stopping at the first failure.
func NewMessages(events []domain.DomainEvent) ([]*Message, error) {
	msgs := make([]*Message, 0, len(events))
	for _, event := range events {
		msg, err := NewMessage(event)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// IsPublished reports whether the message was relayed.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// Envelope wraps the payload with the event identity for the broker.
func (m *Message) Envelope() ([]byte, error) {
	event := eventbus.ConsumedEvent{
		EventID:       m.EventID,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		RoutingKey:    m.RoutingKey,
		OccurredAt:    m.CreatedAt,
		Payload:       m.Payload,
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &event.Metadata); err != nil {
			return nil, err
		}
	}
	return json.Marshal(event)
}
