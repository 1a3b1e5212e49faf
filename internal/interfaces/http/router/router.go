// Package router assembles the gin engine: ambient middleware, the health
// endpoint and the versioned API group.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/infrastructure/logger"
	"github.com/erp/tenancy/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Config holds the engine's middleware configuration
type Config struct {
	Logger         *zap.Logger
	JWT            middleware.JWTMiddlewareConfig
	Tenant         middleware.TenantMiddlewareConfig
	Tracing        middleware.TracingConfig
	TrustedProxies []string
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	cfg        Config
	apiVersion string
	health     gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithHealth serves h on GET /health, outside authentication and tenancy
func WithHealth(h gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.health = h
	}
}

// NewRouter creates a Router over a fresh gin engine
func NewRouter(cfg Config, opts ...RouterOption) (*Router, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	r := &Router{
		engine:     engine,
		cfg:        cfg,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register adds a RouteRegistrar to be registered by Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup installs middleware and routes and returns the engine.
// Order: server span > request logging > recovery > JWT > tenant unit of work.
func (r *Router) Setup() *gin.Engine {
	r.engine.Use(
		middleware.TracingWithConfig(r.cfg.Tracing),
		middleware.SpanAttributes(),
		logger.GinMiddleware(r.cfg.Logger),
		logger.Recovery(r.cfg.Logger),
	)

	if r.health != nil {
		r.engine.GET("/health", r.health)
	}

	api := r.engine.Group("/api/" + r.apiVersion)
	if r.cfg.JWT.Validator != nil {
		jwtCfg := r.cfg.JWT
		if jwtCfg.Logger == nil {
			jwtCfg.Logger = r.cfg.Logger
		}
		api.Use(middleware.JWTAuthMiddlewareWithConfig(jwtCfg))
	}
	tenantCfg := r.cfg.Tenant
	if tenantCfg.Logger == nil {
		tenantCfg.Logger = r.cfg.Logger
	}
	api.Use(middleware.TenantMiddlewareWithConfig(tenantCfg))

	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
	return r.engine
}
