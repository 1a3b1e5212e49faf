// Package tenancy onboards tenants: it provisions their namespace and
// creates the tenant tables inside it.
package tenancy

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/domain/audit"
	"github.com/erp/tenancy/internal/domain/shared"
	domain "github.com/erp/tenancy/internal/domain/tenancy"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
	"github.com/erp/tenancy/internal/infrastructure/wiring"
)

// ErrReservedNamespace is returned when asked to onboard the default namespace
var ErrReservedNamespace = shared.NewDomainError("RESERVED_NAMESPACE", "the default namespace cannot be onboarded as a tenant")

// TxExecutor runs fn inside a transaction of the given definition
type TxExecutor interface {
	Execute(ctx context.Context, def txn.Definition, fn func(ctx context.Context) error) error
}

// Provisioner creates namespaces
type Provisioner interface {
	Provision(ctx context.Context, namespace string) error
	NamespaceExists(ctx context.Context, namespace string) (bool, error)
}

// SchemaMigrator creates the tenant tables in the namespace of the TENANT
// transaction on ctx
type SchemaMigrator interface {
	Migrate(ctx context.Context) error
}

// Auditor records audit events relative to the caller's transaction
type Auditor interface {
	RecordEvent(ctx context.Context, event *audit.Event)
}

// OnboardTenantRequest represents a request to onboard a tenant
type OnboardTenantRequest struct {
	TenantID string `json:"tenant_id" binding:"required,namespace"`
	// RequestedBy is set from the caller's token
	RequestedBy string `json:"-"`
}

// TenantResponse describes an onboarded tenant
type TenantResponse struct {
	TenantID       string    `json:"tenant_id"`
	Namespace      string    `json:"namespace"`
	AlreadyExisted bool      `json:"already_existed"`
	OnboardedAt    time.Time `json:"onboarded_at"`
}

// OnboardingService provisions tenant namespaces
type OnboardingService struct {
	executor    TxExecutor
	provisioner Provisioner
	migrator    SchemaMigrator
	resolver    *domain.Resolver
	auditor     Auditor
	logger      *zap.Logger
}

// NewOnboardingService creates a new OnboardingService. A nil migrator skips
// creating tenant tables.
func NewOnboardingService(
	executor TxExecutor,
	provisioner Provisioner,
	migrator SchemaMigrator,
	resolver *domain.Resolver,
	auditor Auditor,
	logger *zap.Logger,
) *OnboardingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnboardingService{
		executor:    executor,
		provisioner: provisioner,
		migrator:    migrator,
		resolver:    resolver,
		auditor:     auditor,
		logger:      logger,
	}
}

// TransactionDeclarations implements wiring.Declarer
func (s *OnboardingService) TransactionDeclarations() wiring.Declarations {
	return wiring.Declarations{
		Methods: map[string][]*wiring.Marker{
			"OnboardTenant": {wiring.TenantTransactional},
		},
	}
}

// OnboardTenant provisions the tenant's namespace and migrates its tables.
// Onboarding an existing tenant is a no-op apart from migrating.
func (s *OnboardingService) OnboardTenant(ctx context.Context, req OnboardTenantRequest) (*TenantResponse, error) {
	id := strings.TrimSpace(req.TenantID)
	if err := domain.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	if s.resolver.IsRoot(id) {
		return nil, ErrReservedNamespace
	}

	log := s.logger.With(zap.String("tenant_id", id))
	log.Info("Onboarding tenant")

	existed, err := s.provisioner.NamespaceExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.provisioner.Provision(ctx, id); err != nil {
		log.Error("Failed to provision tenant namespace", zap.Error(err))
		s.audit(ctx, id, req.RequestedBy, audit.OutcomeFailure, map[string]any{"error": err.Error()})
		return nil, err
	}

	if s.migrator != nil {
		err := domain.Run(ctx, id, func(ctx context.Context) error {
			return s.executor.Execute(ctx, txn.TenantRequiresNew, s.migrator.Migrate)
		})
		if err != nil {
			log.Error("Failed to migrate tenant namespace", zap.Error(err))
			s.audit(ctx, id, req.RequestedBy, audit.OutcomeFailure, map[string]any{"error": err.Error()})
			return nil, err
		}
	}

	s.audit(ctx, id, req.RequestedBy, audit.OutcomeSuccess, map[string]any{"already_existed": existed})
	log.Info("Tenant onboarded", zap.Bool("already_existed", existed))

	return &TenantResponse{
		TenantID:       id,
		Namespace:      id,
		AlreadyExisted: existed,
		OnboardedAt:    time.Now().UTC(),
	}, nil
}

func (s *OnboardingService) audit(ctx context.Context, tenantID, actor string, outcome audit.Outcome, detail map[string]any) {
	if s.auditor == nil {
		return
	}
	event, err := audit.NewEvent(audit.EventParams{
		Action:   "tenant.provisioned",
		ActorID:  actor,
		TargetID: tenantID,
		TenantID: tenantID,
		Outcome:  outcome,
		Detail:   detail,
	})
	if err != nil {
		s.logger.Error("Failed to build audit event",
			zap.String("action", "tenant.provisioned"),
			zap.String("tenant_id", tenantID),
			zap.String("actor_id", actor),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		return
	}
	s.auditor.RecordEvent(ctx, event)
}
