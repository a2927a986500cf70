package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/revenue/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGinMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestGinMiddlewareLogsDownstreamContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "payment_failed", "gateway" },
	}))
	r.POST("/services/:code/quote", func(c *gin.Context) {
		ctx := obscontext.WithServiceCode(c.Request.Context(), "WTR")
		ctx = obscontext.WithActor(ctx, "user", "idp|7")
		c.Request = c.Request.WithContext(ctx)
		_ = c.Error(errors.New("declined"))
		c.Status(http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodPost, "/services/wtr/quote", nil)
	req.Header.Set("X-Request-Id", "req-9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "WTR", fields["service_code"])
	assert.Equal(t, "idp|7", fields["actor_id"])
	assert.Equal(t, "/services/:code/quote", fields["route"])
	assert.Equal(t, "payment_failed", fields["error_type"])
	assert.Equal(t, "gateway", fields["error_code"])
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusServiceUnavailable, ""))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/metrics", http.StatusOK, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/v1/payments", http.StatusInternalServerError, "persistence_error"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/v1/payments", http.StatusTooManyRequests, "rate_limited"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/v1/services/:code/quote", http.StatusBadRequest, "validation_error"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/v1/me", http.StatusOK, ""))
}
