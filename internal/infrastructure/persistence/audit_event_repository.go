package persistence

import (
	"context"
	"fmt"

	"github.com/erp/tenancy/internal/domain/audit"
	"github.com/erp/tenancy/internal/infrastructure/persistence/models"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
)

// GormAuditEventRepository implements audit.Repository on the transaction
// attached to ctx. Callers run it in a PUBLIC transaction so audit_events
// resolves to the default namespace.
type GormAuditEventRepository struct{}

// NewGormAuditEventRepository creates a new GormAuditEventRepository
func NewGormAuditEventRepository() *GormAuditEventRepository {
	return &GormAuditEventRepository{}
}

// Append inserts an event. Events are never updated.
func (r *GormAuditEventRepository) Append(ctx context.Context, event *audit.Event) error {
	db, err := txn.DB(ctx)
	if err != nil {
		return err
	}
	model, err := models.AuditEventModelFromDomain(event)
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}
	return db.Create(model).Error
}

// FindByTenant returns the newest events recorded for tenantID
func (r *GormAuditEventRepository) FindByTenant(ctx context.Context, tenantID string, limit int) ([]*audit.Event, error) {
	db, err := txn.DB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.AuditEventModel
	if err := db.Where("tenant_id = ?", tenantID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make([]*audit.Event, 0, len(rows))
	for i := range rows {
		e, err := rows[i].ToDomain()
		if err != nil {
			return nil, fmt.Errorf("decode audit event %s: %w", rows[i].ID, err)
		}
		events = append(events, e)
	}
	return events, nil
}

var _ audit.Repository = (*GormAuditEventRepository)(nil)
