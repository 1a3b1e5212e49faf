package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/tenancy/internal/domain/shared"
)

// EntityColumns are the identity and timestamp columns shared by tenant tables
type EntityColumns struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// EntityColumnsOf copies the identity and timestamps of e
func EntityColumnsOf(e shared.BaseEntity) EntityColumns {
	return EntityColumns{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

func (c EntityColumns) entity() shared.BaseEntity {
	return shared.BaseEntity{ID: c.ID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

// TenantModels lists the models migrated into every tenant namespace.
// Public-namespace tables are owned by the SQL migrations.
func TenantModels() []any {
	return []any{&ProductModel{}}
}
