package models

import (
	"github.com/erp/tenancy/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// ProductModel is the persistence model for the Product domain entity.
// The code is unique within the tenant namespace the table lives in.
type ProductModel struct {
	EntityColumns
	Code         string                `gorm:"type:varchar(50);not null;uniqueIndex:idx_product_code"`
	Name         string                `gorm:"type:varchar(200);not null"`
	Unit         string                `gorm:"type:varchar(20);not null"`
	SellingPrice decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Status       catalog.ProductStatus `gorm:"type:varchar(20);not null;default:'active'"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product entity.
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		BaseEntity:   m.EntityColumns.entity(),
		Code:         m.Code,
		Name:         m.Name,
		Unit:         m.Unit,
		SellingPrice: m.SellingPrice,
		Status:       m.Status,
	}
}

// ProductModelFromDomain creates a persistence model from a domain Product entity.
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	return &ProductModel{
		EntityColumns: EntityColumnsOf(p.BaseEntity),
		Code:          p.Code,
		Name:          p.Name,
		Unit:          p.Unit,
		SellingPrice:  p.SellingPrice,
		Status:        p.Status,
	}
}
