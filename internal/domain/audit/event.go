// Package audit defines the append-only audit record written to the default namespace.
package audit

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of the audited action
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// IsValid reports whether o is a known outcome
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeDenied:
		return true
	}
	return false
}

var (
	ErrMissingAction  = errors.New("audit event action is required")
	ErrInvalidOutcome = errors.New("audit event outcome is invalid")
)

// EventParams carries the fields of a new audit event
type EventParams struct {
	Action    string
	ActorID   string
	TargetID  string
	AccountID string
	TenantID  string
	Outcome   Outcome
	Detail    map[string]any
	// OccurredAt defaults to now
	OccurredAt time.Time
}

// Event is an immutable audit record. All fields are set at construction.
type Event struct {
	id         uuid.UUID
	occurredAt time.Time
	action     string
	actorID    string
	targetID   string
	accountID  string
	tenantID   string
	outcome    Outcome
	detail     map[string]any
}

// NewEvent validates p and builds an Event. The detail map is copied.
func NewEvent(p EventParams) (*Event, error) {
	action := strings.TrimSpace(p.Action)
	if action == "" {
		return nil, ErrMissingAction
	}
	if p.Outcome == "" {
		p.Outcome = OutcomeSuccess
	}
	if !p.Outcome.IsValid() {
		return nil, ErrInvalidOutcome
	}
	occurredAt := p.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	return &Event{
		id:         uuid.New(),
		occurredAt: occurredAt.UTC(),
		action:     action,
		actorID:    p.ActorID,
		targetID:   p.TargetID,
		accountID:  p.AccountID,
		tenantID:   p.TenantID,
		outcome:    p.Outcome,
		detail:     maps.Clone(p.Detail),
	}, nil
}

// Rehydrate rebuilds a stored event. Only the persistence layer should call it.
func Rehydrate(id uuid.UUID, p EventParams) *Event {
	return &Event{
		id:         id,
		occurredAt: p.OccurredAt.UTC(),
		action:     p.Action,
		actorID:    p.ActorID,
		targetID:   p.TargetID,
		accountID:  p.AccountID,
		tenantID:   p.TenantID,
		outcome:    p.Outcome,
		detail:     maps.Clone(p.Detail),
	}
}

func (e *Event) ID() uuid.UUID         { return e.id }
func (e *Event) OccurredAt() time.Time { return e.occurredAt }
func (e *Event) Action() string        { return e.action }
func (e *Event) ActorID() string       { return e.actorID }
func (e *Event) TargetID() string      { return e.targetID }
func (e *Event) AccountID() string     { return e.accountID }
func (e *Event) TenantID() string      { return e.tenantID }
func (e *Event) Outcome() Outcome      { return e.outcome }

// Detail returns a copy of the structured detail
func (e *Event) Detail() map[string]any {
	return maps.Clone(e.detail)
}

// Repository appends and reads audit events. Implementations run on the
// transaction attached to ctx.
type Repository interface {
	Append(ctx context.Context, event *Event) error
	FindByTenant(ctx context.Context, tenantID string, limit int) ([]*Event, error)
}
