package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGinMiddleware(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) {
		assert.NotEmpty(t, GetRequestID(c.Request.Context()))
		c.Status(http.StatusOK)
	})
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	t.Run("generates a request id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("propagates an incoming request id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(RequestIDHeader, "abc")
		r.ServeHTTP(w, req)
		assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	})

	t.Run("client errors log at warn", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
		entries := recorded.FilterMessage("HTTP Request").All()
		require.NotEmpty(t, entries)
		assert.Equal(t, zapcore.WarnLevel, entries[len(entries)-1].Level)
	})
}

func TestRecovery(t *testing.T) {
	core, recorded := observer.New(zapcore.ErrorLevel)
	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, recorded.FilterMessage("Panic recovered").Len())
}
