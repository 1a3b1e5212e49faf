package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries identity and timestamps. Timestamps are UTC so rows
// written from different namespaces compare consistently.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity returns an entity with a fresh random ID
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch records a modification
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
