// Package catalog holds the tenant-scoped product use cases.
package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/domain/audit"
	"github.com/erp/tenancy/internal/domain/catalog"
	"github.com/erp/tenancy/internal/domain/shared"
	"github.com/erp/tenancy/internal/domain/tenancy"
	"github.com/erp/tenancy/internal/infrastructure/logger"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
	"github.com/erp/tenancy/internal/infrastructure/wiring"
)

// TxExecutor runs fn inside a transaction of the given definition
type TxExecutor interface {
	Execute(ctx context.Context, def txn.Definition, fn func(ctx context.Context) error) error
}

// Auditor records audit events relative to the caller's transaction
type Auditor interface {
	RecordEvent(ctx context.Context, event *audit.Event)
}

var productDeclarations = wiring.Declarations{
	Type: []*wiring.Marker{wiring.TenantTransactional},
}

// ProductService handles product operations inside the bound tenant's namespace
type ProductService struct {
	executor TxExecutor
	repo     catalog.ProductRepository
	auditor  Auditor
}

// NewProductService creates a new ProductService
func NewProductService(executor TxExecutor, repo catalog.ProductRepository, auditor Auditor) *ProductService {
	return &ProductService{
		executor: executor,
		repo:     repo,
		auditor:  auditor,
	}
}

// TransactionDeclarations implements wiring.Declarer
func (s *ProductService) TransactionDeclarations() wiring.Declarations {
	return productDeclarations
}

// definition builds the transaction definition for method from its declared scope
func definition(method string, readOnly bool) txn.Definition {
	scope, ok := productDeclarations.ScopeOf(method)
	if !ok {
		scope = txn.ScopeTenant
	}
	return txn.Definition{Scope: scope, Propagation: txn.PropagationRequired, ReadOnly: readOnly}
}

// CreateProduct creates a product in the current tenant's namespace
func (s *ProductService) CreateProduct(ctx context.Context, req CreateProductRequest) (*ProductResponse, error) {
	var out ProductResponse
	err := s.executor.Execute(ctx, definition("CreateProduct", false), func(ctx context.Context) error {
		exists, err := s.repo.ExistsByCode(ctx, req.Code)
		if err != nil {
			return err
		}
		if exists {
			return catalog.ErrProductCodeExists
		}

		product, err := catalog.NewProduct(req.Code, req.Name, req.Unit, req.SellingPrice)
		if err != nil {
			return err
		}
		if err := s.repo.Save(ctx, product); err != nil {
			return err
		}

		s.audit(ctx, "product.created", req.CreatedBy, product)
		out = ToProductResponse(product)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByCode returns the product with the given code
func (s *ProductService) GetByCode(ctx context.Context, code string) (*ProductResponse, error) {
	var out ProductResponse
	err := s.executor.Execute(ctx, definition("GetByCode", true), func(ctx context.Context) error {
		product, err := s.repo.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		out = ToProductResponse(product)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProducts returns a page of products
func (s *ProductService) ListProducts(ctx context.Context, filter shared.Filter) (*shared.Paginated[ProductResponse], error) {
	filter = filter.Normalize()
	var out shared.Paginated[ProductResponse]
	err := s.executor.Execute(ctx, definition("ListProducts", true), func(ctx context.Context) error {
		products, err := s.repo.FindAll(ctx, filter)
		if err != nil {
			return err
		}
		total, err := s.repo.Count(ctx)
		if err != nil {
			return err
		}
		out = shared.NewPaginated(ToProductResponses(products), total, filter.Page, filter.PageSize)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ProductService) audit(ctx context.Context, action, actor string, product *catalog.Product) {
	if s.auditor == nil {
		return
	}
	tenantID, _ := tenancy.Current(ctx)
	event, err := audit.NewEvent(audit.EventParams{
		Action:   action,
		ActorID:  actor,
		TargetID: product.Code,
		TenantID: tenantID,
		Detail:   map[string]any{"product_id": product.ID.String()},
	})
	if err != nil {
		logger.FromContext(ctx).Error("Failed to build audit event",
			zap.String("action", action),
			zap.String("tenant_id", tenantID),
			zap.String("actor_id", actor),
			zap.String("product_code", product.Code),
			zap.Error(err),
		)
		return
	}
	s.auditor.RecordEvent(ctx, event)
}
