package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/tenancy/internal/infrastructure/auth"
	"github.com/erp/tenancy/internal/infrastructure/config"
)

func newJWTRouter(cfg JWTMiddlewareConfig) (*gin.Engine, *auth.Claims) {
	var seen auth.Claims
	r := gin.New()
	r.Use(JWTAuthMiddlewareWithConfig(cfg))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api", func(c *gin.Context) {
		if claims := GetJWTClaims(c); claims != nil {
			seen = *claims
		}
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{Secret: "test-secret", Issuer: "tenancy"})
	valid, err := svc.GenerateToken("user-1", "t_acme", time.Hour)
	require.NoError(t, err)
	expired, err := svc.GenerateToken("user-1", "t_acme", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name           string
		path           string
		header         string
		expectedStatus int
		expectedCode   string
	}{
		{name: "valid token", path: "/api", header: BearerPrefix + valid, expectedStatus: http.StatusOK},
		{name: "skip path", path: "/health", expectedStatus: http.StatusOK},
		{name: "missing header", path: "/api", expectedStatus: http.StatusUnauthorized, expectedCode: "ERR_UNAUTHORIZED"},
		{name: "wrong scheme", path: "/api", header: "Basic abc", expectedStatus: http.StatusUnauthorized, expectedCode: "ERR_UNAUTHORIZED"},
		{name: "expired", path: "/api", header: BearerPrefix + expired, expectedStatus: http.StatusUnauthorized, expectedCode: "ERR_TOKEN_EXPIRED"},
		{name: "garbage", path: "/api", header: BearerPrefix + "not.a.token", expectedStatus: http.StatusUnauthorized, expectedCode: "ERR_TOKEN_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newJWTRouter(DefaultJWTConfig(svc))
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Contains(t, w.Body.String(), tt.expectedCode)
			}
		})
	}
}

func TestJWTAuthMiddleware_StoresClaims(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{Secret: "test-secret"})
	token, err := svc.GenerateToken("user-7", "t_acme", time.Hour)
	require.NoError(t, err)

	r, seen := newJWTRouter(DefaultJWTConfig(svc))
	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-7", seen.UserID)
	assert.Equal(t, "t_acme", seen.TenantID)
}

func TestJWTAuthMiddleware_Optional(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{Secret: "test-secret"})
	cfg := DefaultJWTConfig(svc)
	cfg.Optional = true
	r, _ := newJWTRouter(cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+"bad")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
