package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/domain/tenancy"
	"github.com/erp/tenancy/internal/infrastructure/logger"
	"github.com/erp/tenancy/internal/interfaces/http/dto"
)

// Tenant context keys
const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// HeaderEnabled enables X-Tenant-ID header extraction
	HeaderEnabled bool
	// SubdomainEnabled enables subdomain extraction below BaseDomain
	SubdomainEnabled bool
	BaseDomain       string
	Logger           *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{HeaderEnabled: true}
}

// TenantMiddleware opens the request's unit of work and binds the tenant found
// on the request. Extraction order: JWT claim > X-Tenant-ID header > subdomain.
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration.
// The binding is cleared when the handler chain returns, including on panic.
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		ctx, release := tenancy.Begin(c.Request.Context(), log)
		defer release()

		tenantID, source := extractTenantID(c, cfg)
		if tenantID != "" {
			if err := tenancy.ValidateIdentifier(tenantID); err != nil {
				logger.FromContext(ctx).Warn("Rejected tenant identifier",
					zap.String("source", source),
					zap.Error(err),
				)
				c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
					dto.ErrCodeInvalidTenant, "Invalid tenant identifier", logger.GetRequestID(ctx)))
				return
			}
			if err := tenancy.Bind(ctx, tenantID); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
					dto.ErrCodeInvalidTenant, err.Error(), logger.GetRequestID(ctx)))
				return
			}
			c.Set(TenantIDKey, tenantID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireTenant aborts requests whose unit of work has no tenant bound
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := tenancy.Current(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
				dto.ErrCodeTenantRequired, "Tenant identification required",
				logger.GetRequestID(c.Request.Context())))
			return
		}
		c.Next()
	}
}

// GetTenantID returns the tenant bound by the middleware, or ""
func GetTenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

func extractTenantID(c *gin.Context, cfg TenantMiddlewareConfig) (string, string) {
	if id := GetJWTTenantID(c); id != "" {
		return id, "jwt"
	}
	if cfg.HeaderEnabled {
		if id := strings.TrimSpace(c.GetHeader(TenantHeaderKey)); id != "" {
			return id, "header"
		}
	}
	if cfg.SubdomainEnabled && cfg.BaseDomain != "" {
		if id := extractTenantFromSubdomain(c.Request.Host, cfg.BaseDomain); id != "" {
			return id, "subdomain"
		}
	}
	return "", ""
}

func extractTenantFromSubdomain(host, baseDomain string) string {
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	if !strings.HasSuffix(host, "."+baseDomain) {
		return ""
	}

	subdomain := strings.TrimSuffix(host, "."+baseDomain)
	if subdomain == "" || subdomain == "www" {
		return ""
	}
	return strings.Split(subdomain, ".")[0]
}
