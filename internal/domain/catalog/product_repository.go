package catalog

import (
	"context"

	"github.com/erp/tenancy/internal/domain/shared"
)

// ProductRepository persists products in the namespace of the transaction on ctx
type ProductRepository interface {
	// Save creates or updates a product
	Save(ctx context.Context, product *Product) error

	// FindByCode finds a product by its natural key
	FindByCode(ctx context.Context, code string) (*Product, error)

	// FindAll lists products using the filter's paging and ordering
	FindAll(ctx context.Context, filter shared.Filter) ([]*Product, error)

	// Count returns the number of products
	Count(ctx context.Context) (int64, error)

	// ExistsByCode reports whether a product with the code exists
	ExistsByCode(ctx context.Context, code string) (bool, error)
}
