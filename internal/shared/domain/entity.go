package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entity is a domain object with identity.
type Entity interface {
	ID() uuid.UUID
	CreatedAt() time.Time
	UpdatedAt() time.Time
}

// BaseEntity carries identity and timestamps for entities.
type BaseEntity struct {
	id        uuid.UUID
	createdAt time.Time
	updatedAt time.Time
}

// NewBaseEntity creates an entity with a fresh ID stamped at now.
func NewBaseEntity(now time.Time) BaseEntity {
	now = now.UTC()
	return BaseEntity{
		id:        uuid.New(),
		createdAt: now,
		updatedAt: now,
	}
}

// RehydrateBaseEntity recreates an entity from persisted state.
func RehydrateBaseEntity(id uuid.UUID, createdAt, updatedAt time.Time) BaseEntity {
	return BaseEntity{
		id:        id,
		createdAt: createdAt.UTC(),
		updatedAt: updatedAt.UTC(),
	}
}

func (e BaseEntity) ID() uuid.UUID        { return e.id }
func (e BaseEntity) CreatedAt() time.Time { return e.createdAt }
func (e BaseEntity) UpdatedAt() time.Time { return e.updatedAt }

// Touch moves updatedAt forward to now.
func (e *BaseEntity) Touch(now time.Time) {
	e.updatedAt = now.UTC()
}
