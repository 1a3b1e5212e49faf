package audit

import (
	"context"
	"time"

	"github.com/erp/tenancy/internal/domain/audit"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
	"github.com/erp/tenancy/internal/infrastructure/wiring"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// EventResponse represents an audit event in API responses
type EventResponse struct {
	ID         string         `json:"id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	AccountID  string         `json:"account_id,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	Outcome    string         `json:"outcome"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// ToEventResponse converts a domain event to a response
func ToEventResponse(e *audit.Event) EventResponse {
	return EventResponse{
		ID:         e.ID().String(),
		OccurredAt: e.OccurredAt(),
		Action:     e.Action(),
		ActorID:    e.ActorID(),
		TargetID:   e.TargetID(),
		AccountID:  e.AccountID(),
		TenantID:   e.TenantID(),
		Outcome:    string(e.Outcome()),
		Detail:     e.Detail(),
	}
}

// QueryService reads audit events from the default namespace
type QueryService struct {
	executor TxExecutor
	repo     audit.Repository
}

// NewQueryService creates a new QueryService
func NewQueryService(executor TxExecutor, repo audit.Repository) *QueryService {
	return &QueryService{executor: executor, repo: repo}
}

// TransactionDeclarations implements wiring.Declarer
func (s *QueryService) TransactionDeclarations() wiring.Declarations {
	return wiring.Declarations{Type: []*wiring.Marker{wiring.PublicTransactional}}
}

// ListByTenant returns the newest events recorded for tenantID
func (s *QueryService) ListByTenant(ctx context.Context, tenantID string, limit int) ([]EventResponse, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	var out []EventResponse
	err := s.executor.Execute(ctx, txn.PublicRequiredReadOnly, func(ctx context.Context) error {
		events, err := s.repo.FindByTenant(ctx, tenantID, limit)
		if err != nil {
			return err
		}
		out = make([]EventResponse, 0, len(events))
		for _, e := range events {
			out = append(out, ToEventResponse(e))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
