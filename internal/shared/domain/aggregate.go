package domain

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is the consistency boundary that records domain events.
type AggregateRoot interface {
	Entity
	DomainEvents() []DomainEvent
	ClearDomainEvents()
	Version() int
}

// BaseAggregateRoot provides event recording and a persistence version.
type BaseAggregateRoot struct {
	BaseEntity
	domainEvents []DomainEvent
	version      int
}

// NewBaseAggregateRoot creates a new aggregate root stamped at now.
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(now)}
}

// RehydrateBaseAggregateRoot recreates an aggregate root from persisted state.
func RehydrateBaseAggregateRoot(id uuid.UUID, createdAt, updatedAt time.Time, version int) BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: RehydrateBaseEntity(id, createdAt, updatedAt),
		version:    version,
	}
}

// DomainEvents returns events recorded since the last clear.
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents drops recorded events once they are stored.
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// AddDomainEvent records an event.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// Version returns the persisted version used for optimistic checks.
func (a *BaseAggregateRoot) Version() int {
	return a.version
}

// IncrementVersion bumps the version after a successful save.
func (a *BaseAggregateRoot) IncrementVersion() {
	a.version++
}
