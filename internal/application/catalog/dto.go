package catalog

import (
	"time"

	"github.com/erp/tenancy/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateProductRequest represents a request to create a new product
type CreateProductRequest struct {
	Code         string          `json:"code" binding:"required,min=1,max=50"`
	Name         string          `json:"name" binding:"required,min=1,max=200"`
	Unit         string          `json:"unit" binding:"required,min=1,max=20"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	// CreatedBy is set from the caller's token, never from the body
	CreatedBy string `json:"-"`
}

// ProductResponse represents a product in API responses
type ProductResponse struct {
	ID           uuid.UUID       `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{
		ID:           p.ID,
		Code:         p.Code,
		Name:         p.Name,
		Unit:         p.Unit,
		SellingPrice: p.SellingPrice,
		Status:       string(p.Status),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// ToProductResponses converts a slice of products
func ToProductResponses(products []*catalog.Product) []ProductResponse {
	responses := make([]ProductResponse, len(products))
	for i, p := range products {
		responses[i] = ToProductResponse(p)
	}
	return responses
}
