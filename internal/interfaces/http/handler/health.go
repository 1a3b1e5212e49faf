package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erp/tenancy/internal/infrastructure/persistence"
	"github.com/erp/tenancy/internal/interfaces/http/dto"
)

// DatabaseChecker reports the health of the shared pool
type DatabaseChecker interface {
	Ping(ctx context.Context) error
	Stats() persistence.ConnectionStats
}

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	BaseHandler
	db        DatabaseChecker
	namespace string
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db DatabaseChecker, defaultNamespace string) *HealthHandler {
	return &HealthHandler{db: db, namespace: defaultNamespace, startTime: time.Now()}
}

// HealthResponse describes the service health
type HealthResponse struct {
	Status           string                       `json:"status"`
	Database         string                       `json:"database"`
	DefaultNamespace string                       `json:"default_namespace"`
	Uptime           string                       `json:"uptime"`
	Pool             *persistence.ConnectionStats `json:"pool,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:           "healthy",
		Database:         "up",
		DefaultNamespace: h.namespace,
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
	}
	if err := h.db.Ping(ctx); err != nil {
		resp.Status, resp.Database = "unhealthy", "down"
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	stats := h.db.Stats()
	resp.Pool = &stats
	h.Success(c, resp)
}
