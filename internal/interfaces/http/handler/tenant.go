package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	apptenancy "github.com/erp/tenancy/internal/application/tenancy"
	"github.com/erp/tenancy/internal/interfaces/http/middleware"
)

// OnboardingService is the tenant onboarding surface used by TenantHandler
type OnboardingService interface {
	OnboardTenant(ctx context.Context, req apptenancy.OnboardTenantRequest) (*apptenancy.TenantResponse, error)
}

// TenantHandler onboards tenants
type TenantHandler struct {
	BaseHandler
	service OnboardingService
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(service OnboardingService) *TenantHandler {
	return &TenantHandler{service: service}
}

// Onboard handles POST /api/v1/tenants. Only platform callers, whose request
// carries no tenant, may onboard.
func (h *TenantHandler) Onboard(c *gin.Context) {
	if middleware.GetTenantID(c) != "" {
		h.Forbidden(c, "Tenant-bound callers cannot onboard tenants")
		return
	}

	var req apptenancy.OnboardTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	req.RequestedBy = middleware.GetJWTUserID(c)

	resp, err := h.service.OnboardTenant(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if resp.AlreadyExisted {
		h.Success(c, resp)
		return
	}
	h.Created(c, resp)
}

// RegisterRoutes registers the onboarding route
func (h *TenantHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/tenants", h.Onboard)
}
