package catalog

import (
	"strings"

	"github.com/erp/tenancy/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProductStatus represents the status of a product
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// Product is a catalog entry. Products live in their tenant's namespace, so
// the code is unique per namespace and there is no tenant column.
type Product struct {
	shared.BaseEntity
	Code         string
	Name         string
	Unit         string
	SellingPrice decimal.Decimal
	Status       ProductStatus
}

var (
	ErrInvalidProductCode  = shared.NewDomainError("INVALID_PRODUCT_CODE", "product code must be 1-50 characters")
	ErrInvalidProductName  = shared.NewDomainError("INVALID_PRODUCT_NAME", "product name must be 1-200 characters")
	ErrInvalidProductUnit  = shared.NewDomainError("INVALID_PRODUCT_UNIT", "product unit must be 1-20 characters")
	ErrInvalidProductPrice = shared.NewDomainError("INVALID_PRODUCT_PRICE", "product price cannot be negative")
	ErrProductCodeExists   = shared.NewDomainError("PRODUCT_CODE_EXISTS", "product code already exists")
)

// NewProduct creates a new active product. Codes are stored upper-case.
func NewProduct(code, name, unit string, price decimal.Decimal) (*Product, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	unit = strings.TrimSpace(unit)

	if code == "" || len(code) > 50 {
		return nil, ErrInvalidProductCode
	}
	if name == "" || len(name) > 200 {
		return nil, ErrInvalidProductName
	}
	if unit == "" || len(unit) > 20 {
		return nil, ErrInvalidProductUnit
	}
	if price.IsNegative() {
		return nil, ErrInvalidProductPrice
	}

	return &Product{
		BaseEntity:   shared.NewBaseEntity(),
		Code:         code,
		Name:         name,
		Unit:         unit,
		SellingPrice: price,
		Status:       ProductStatusActive,
	}, nil
}

// Deactivate marks the product inactive
func (p *Product) Deactivate() {
	p.Status = ProductStatusInactive
	p.Touch()
}

// IsActive reports whether the product can be sold
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}
