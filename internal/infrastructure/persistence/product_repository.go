package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/erp/tenancy/internal/domain/catalog"
	"github.com/erp/tenancy/internal/domain/shared"
	"github.com/erp/tenancy/internal/infrastructure/persistence/models"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
)

// GormProductRepository implements catalog.ProductRepository. It has no handle
// of its own: every call runs on the transaction attached to ctx, so the
// products table it sees is the one in that transaction's namespace.
type GormProductRepository struct{}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository() *GormProductRepository {
	return &GormProductRepository{}
}

// Save creates or updates a product
func (r *GormProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	db, err := txn.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(models.ProductModelFromDomain(product)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return catalog.ErrProductCodeExists
		}
		return fmt.Errorf("save product %s: %w", product.Code, err)
	}
	return nil
}

// FindByCode finds a product by its code
func (r *GormProductRepository) FindByCode(ctx context.Context, code string) (*catalog.Product, error) {
	db, err := txn.DB(ctx)
	if err != nil {
		return nil, err
	}
	var model models.ProductModel
	if err := db.Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists products using the filter's paging and ordering
func (r *GormProductRepository) FindAll(ctx context.Context, filter shared.Filter) ([]*catalog.Product, error) {
	db, err := txn.DB(ctx)
	if err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	var rows []models.ProductModel
	if err := db.Model(&models.ProductModel{}).
		Order(orderBy(filter, productOrderColumns, "code")).
		Limit(filter.PageSize).
		Offset(filter.Offset()).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	products := make([]*catalog.Product, 0, len(rows))
	for i := range rows {
		products = append(products, rows[i].ToDomain())
	}
	return products, nil
}

// Count returns the number of products
func (r *GormProductRepository) Count(ctx context.Context) (int64, error) {
	db, err := txn.DB(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(&models.ProductModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsByCode reports whether a product with the code exists
func (r *GormProductRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	db, err := txn.DB(ctx)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Model(&models.ProductModel{}).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ catalog.ProductRepository = (*GormProductRepository)(nil)
