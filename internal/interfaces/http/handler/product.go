package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	catalogapp "github.com/erp/tenancy/internal/application/catalog"
	"github.com/erp/tenancy/internal/domain/shared"
	"github.com/erp/tenancy/internal/interfaces/http/middleware"
)

// ProductService is the catalog use case surface used by ProductHandler
type ProductService interface {
	CreateProduct(ctx context.Context, req catalogapp.CreateProductRequest) (*catalogapp.ProductResponse, error)
	GetByCode(ctx context.Context, code string) (*catalogapp.ProductResponse, error)
	ListProducts(ctx context.Context, filter shared.Filter) (*shared.Paginated[catalogapp.ProductResponse], error)
}

// ProductHandler serves the current tenant's products
type ProductHandler struct {
	BaseHandler
	service ProductService
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(service ProductService) *ProductHandler {
	return &ProductHandler{service: service}
}

// ListProductsQuery holds the list query parameters
type ListProductsQuery struct {
	Page     int    `form:"page" binding:"omitempty,gte=1"`
	PageSize int    `form:"page_size" binding:"omitempty,gte=1,lte=100"`
	OrderBy  string `form:"order_by" binding:"omitempty,max=50"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// Create handles POST /api/v1/products
func (h *ProductHandler) Create(c *gin.Context) {
	var req catalogapp.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	req.CreatedBy = middleware.GetJWTUserID(c)

	product, err := h.service.CreateProduct(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, product)
}

// GetByCode handles GET /api/v1/products/:code
func (h *ProductHandler) GetByCode(c *gin.Context) {
	product, err := h.service.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// List handles GET /api/v1/products
func (h *ProductHandler) List(c *gin.Context) {
	var q ListProductsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindingError(c, err)
		return
	}

	filter := shared.DefaultFilter()
	if q.Page > 0 {
		filter.Page = q.Page
	}
	if q.PageSize > 0 {
		filter.PageSize = q.PageSize
	}
	if q.OrderBy != "" {
		filter.OrderBy = q.OrderBy
	}
	if q.OrderDir != "" {
		filter.OrderDir = q.OrderDir
	}

	page, err := h.service.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize, page.TotalPages)
}

// RegisterRoutes registers the product routes; they require a bound tenant
func (h *ProductHandler) RegisterRoutes(rg *gin.RouterGroup) {
	products := rg.Group("/products", middleware.RequireTenant())
	products.POST("", h.Create)
	products.GET("", h.List)
	products.GET("/:code", h.GetByCode)
}
