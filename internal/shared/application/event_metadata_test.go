package application

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	domain.BaseEvent
}

func TestNewEventMetadata(t *testing.T) {
	t.Run("generates a correlation id without context value", func(t *testing.T) {
		userID := uuid.New()

		first := NewEventMetadata(context.Background(), userID)
		second := NewEventMetadata(context.Background(), userID)

		assert.Equal(t, userID, first.UserID)
		assert.NotEqual(t, uuid.Nil, first.CorrelationID)
		assert.NotEqual(t, first.CorrelationID, second.CorrelationID)
	})

	t.Run("reuses the correlation id from context", func(t *testing.T) {
		correlationID := uuid.New()
		ctx := WithCorrelationID(context.Background(), correlationID)

		meta := NewEventMetadata(ctx, uuid.New())

		assert.Equal(t, correlationID, meta.CorrelationID)
		assert.NotEqual(t, correlationID, meta.CausationID)
	})
}

func TestApplyEventMetadata(t *testing.T) {
	now := time.Now()
	first := &testEvent{BaseEvent: domain.NewBaseEvent(uuid.New(), "User", "ledger.credits.granted", now)}
	second := &testEvent{BaseEvent: domain.NewBaseEvent(uuid.New(), "User", "ledger.problem_credit.debited", now)}
	meta := NewEventMetadata(context.Background(), uuid.New())

	ApplyEventMetadata([]domain.DomainEvent{first, second}, meta)

	assert.Equal(t, meta, first.Metadata())
	assert.Equal(t, meta, second.Metadata())

	require.NotPanics(t, func() { ApplyEventMetadata(nil, meta) })
}
