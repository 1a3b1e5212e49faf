package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	auditapp "github.com/erp/tenancy/internal/application/audit"
	"github.com/erp/tenancy/internal/interfaces/http/middleware"
)

// AuditQueryService is the audit read surface used by AuditHandler
type AuditQueryService interface {
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]auditapp.EventResponse, error)
}

// AuditHandler serves the audit trail
type AuditHandler struct {
	BaseHandler
	service AuditQueryService
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditQueryService) *AuditHandler {
	return &AuditHandler{service: service}
}

// ListAuditEventsQuery holds the list query parameters
type ListAuditEventsQuery struct {
	TenantID string `form:"tenant_id" binding:"omitempty,namespace"`
	Limit    int    `form:"limit" binding:"omitempty,gte=1,lte=500"`
}

// List handles GET /api/v1/audit-events. A tenant-bound caller only sees its
// own tenant's events; platform callers must name the tenant.
func (h *AuditHandler) List(c *gin.Context) {
	var q ListAuditEventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindingError(c, err)
		return
	}

	tenantID := q.TenantID
	if bound := middleware.GetTenantID(c); bound != "" {
		if tenantID != "" && tenantID != bound {
			h.Forbidden(c, "Cannot read another tenant's audit events")
			return
		}
		tenantID = bound
	}
	if tenantID == "" {
		h.BadRequest(c, "tenant_id is required")
		return
	}

	events, err := h.service.ListByTenant(c.Request.Context(), tenantID, q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, events)
}

// RegisterRoutes registers the audit trail route
func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/audit-events", h.List)
}
