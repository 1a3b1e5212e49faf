package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/infrastructure/auth"
	"github.com/erp/tenancy/internal/infrastructure/logger"
	"github.com/erp/tenancy/internal/interfaces/http/dto"
)

// JWT context keys
const (
	JWTClaimsKey   = "jwt_claims"
	JWTUserIDKey   = "jwt_user_id"
	JWTTenantIDKey = "jwt_tenant_id"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

var errMissingBearer = errors.New("missing bearer token")

// TokenValidator validates a bearer token
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	Validator TokenValidator
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// Optional lets requests without an Authorization header through unauthenticated
	Optional bool
	Logger   *zap.Logger
}

// DefaultJWTConfig returns default JWT middleware configuration
func DefaultJWTConfig(v TokenValidator) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		Validator: v,
		SkipPaths: []string{"/health", "/healthz", "/ready"},
	}
}

// JWTAuthMiddleware creates JWT authentication middleware
func JWTAuthMiddleware(v TokenValidator) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(v))
}

// JWTAuthMiddlewareWithConfig creates JWT authentication middleware with custom config
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip {
				c.Next()
				return
			}
		}

		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			if cfg.Optional {
				c.Next()
				return
			}
			abortUnauthorized(c, log, errMissingBearer, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abortUnauthorized(c, log, errMissingBearer, "Invalid authorization header format")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		if token == "" {
			abortUnauthorized(c, log, errMissingBearer, "Missing token")
			return
		}

		claims, err := cfg.Validator.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, log, err, "Token validation failed")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTTenantIDKey, claims.TenantID)

		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(logger.WithContext(ctx,
			logger.FromContext(ctx).With(zap.String("user_id", claims.UserID))))

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, log *zap.Logger, err error, message string) {
	log.Warn("JWT authentication failed",
		zap.Error(err),
		zap.String("message", message),
		zap.String("path", c.Request.URL.Path),
	)

	code, msg := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, msg = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid), errors.Is(err, auth.ErrInvalidClaims):
		code, msg = dto.ErrCodeTokenInvalid, "Invalid token"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponse(code, msg, logger.GetRequestID(c.Request.Context())))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(JWTClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// GetJWTUserID retrieves the user ID from JWT claims in context
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}

// GetJWTTenantID retrieves the tenant ID from JWT claims in context
func GetJWTTenantID(c *gin.Context) string {
	return c.GetString(JWTTenantIDKey)
}
