package models

import (
	"encoding/json"
	"time"

	"github.com/erp/tenancy/internal/domain/audit"
	"github.com/google/uuid"
)

// AuditEventModel is the persistence model for audit events. The table lives
// in the default namespace and is append-only.
type AuditEventModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	OccurredAt time.Time `gorm:"not null;index:idx_audit_events_tenant_time,priority:2"`
	Action     string    `gorm:"type:varchar(100);not null"`
	ActorID    string    `gorm:"type:varchar(100)"`
	TargetID   string    `gorm:"type:varchar(100)"`
	AccountID  string    `gorm:"type:varchar(100)"`
	TenantID   string    `gorm:"type:varchar(63);index:idx_audit_events_tenant_time,priority:1"`
	Outcome    string    `gorm:"type:varchar(20);not null"`
	Detail     *string   `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (AuditEventModel) TableName() string {
	return "audit_events"
}

// AuditEventModelFromDomain creates a persistence model from a domain event
func AuditEventModelFromDomain(e *audit.Event) (*AuditEventModel, error) {
	m := &AuditEventModel{
		ID:         e.ID(),
		OccurredAt: e.OccurredAt(),
		Action:     e.Action(),
		ActorID:    e.ActorID(),
		TargetID:   e.TargetID(),
		AccountID:  e.AccountID(),
		TenantID:   e.TenantID(),
		Outcome:    string(e.Outcome()),
	}
	if detail := e.Detail(); len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			return nil, err
		}
		encoded := string(raw)
		m.Detail = &encoded
	}
	return m, nil
}

// ToDomain converts the persistence model to a domain event
func (m *AuditEventModel) ToDomain() (*audit.Event, error) {
	var detail map[string]any
	if m.Detail != nil && *m.Detail != "" {
		if err := json.Unmarshal([]byte(*m.Detail), &detail); err != nil {
			return nil, err
		}
	}
	return audit.Rehydrate(m.ID, audit.EventParams{
		Action:     m.Action,
		ActorID:    m.ActorID,
		TargetID:   m.TargetID,
		AccountID:  m.AccountID,
		TenantID:   m.TenantID,
		Outcome:    audit.Outcome(m.Outcome),
		Detail:     detail,
		OccurredAt: m.OccurredAt,
	}), nil
}
