package application

import (
	"context"

	"github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/google/uuid"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// WithCorrelationID attaches a correlation id to the context. The id is
// shared with the logging context so log lines and events line up.
func WithCorrelationID(ctx context.Context, id uuid.UUID) context.Context {
	return observability.WithCorrelationID(ctx, id.String())
}

// CorrelationIDFromContext returns the correlation id, if any.
func CorrelationIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(observability.CorrelationIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, false
	}
	return id, id != uuid.Nil
}

// NewEventMetadata builds metadata for events caused by one operation.
// The correlation id is taken from ctx when present.
func NewEventMetadata(ctx context.Context, userID uuid.UUID) domain.EventMetadata {
	correlationID, ok := CorrelationIDFromContext(ctx)
	if !ok {
		correlationID = uuid.New()
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   uuid.New(),
		UserID:        userID,
	}
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
