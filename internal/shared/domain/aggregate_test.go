package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerStub struct {
	domain.BaseAggregateRoot
}

type stubEvent struct {
	domain.BaseEvent
}

func TestBaseAggregateRoot_RecordsAndClearsEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg := &ledgerStub{BaseAggregateRoot: domain.NewBaseAggregateRoot(now)}

	require.NotEqual(t, uuid.Nil, agg.ID())
	assert.Equal(t, now, agg.CreatedAt())
	assert.Equal(t, agg.CreatedAt(), agg.UpdatedAt())
	assert.Empty(t, agg.DomainEvents())

	evt := stubEvent{BaseEvent: domain.NewBaseEvent(agg.ID(), "Stub", "stub.created", now)}
	agg.AddDomainEvent(evt)

	require.Len(t, agg.DomainEvents(), 1)
	assert.Equal(t, "stub.created", agg.DomainEvents()[0].RoutingKey())
	assert.Equal(t, agg.ID(), agg.DomainEvents()[0].AggregateID())

	agg.ClearDomainEvents()
	assert.Empty(t, agg.DomainEvents())
}

func TestBaseAggregateRoot_Versioning(t *testing.T) {
	id := uuid.New()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := domain.RehydrateBaseAggregateRoot(id, created, created.Add(time.Hour), 4)

	assert.Equal(t, id, agg.ID())
	assert.Equal(t, 4, agg.Version())

	agg.IncrementVersion()
	assert.Equal(t, 5, agg.Version())

	agg.Touch(created.Add(2 * time.Hour))
	assert.Equal(t, created.Add(2*time.Hour), agg.UpdatedAt())
	assert.Equal(t, created, agg.CreatedAt())
}

func TestBaseEvent_Metadata(t *testing.T) {
	at := time.Date(2026, 5, 5, 5, 5, 5, 0, time.FixedZone("X", 3600))
	evt := domain.NewBaseEvent(uuid.New(), "User", "ledger.credits.granted", at)

	assert.NotEqual(t, uuid.Nil, evt.EventID())
	assert.Equal(t, time.UTC, evt.OccurredAt().Location())

	meta := domain.EventMetadata{CorrelationID: uuid.New(), UserID: uuid.New()}
	evt.SetMetadata(meta)
	assert.Equal(t, meta, evt.Metadata())
}
