package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegisGraph/internal/interfaces/http/handlers"
	"github.com/turtacn/LegisGraph/internal/interfaces/http/middleware"
)

func TestNewRouter_HealthOutsideAPIGroup(t *testing.T) {
	r := NewRouter(RouterConfig{
		HealthHandler: handlers.NewHealthHandler("test"),
		Mode:          gin.TestMode,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRouter_NilHandlersLeaveRoutesUnregistered(t *testing.T) {
	r := NewRouter(RouterConfig{Mode: gin.TestMode})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	var served bool
	r := NewRouter(RouterConfig{
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			served = true
			w.WriteHeader(http.StatusOK)
		}),
		Mode: gin.TestMode,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, served)
}

func TestNewRouter_RequestIDOnEveryResponse(t *testing.T) {
	r := NewRouter(RouterConfig{
		HealthHandler: handlers.NewHealthHandler("test"),
		Mode:          gin.TestMode,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestNewRouter_RateLimiterSparesProbes(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
	})
	r := NewRouter(RouterConfig{
		HealthHandler: handlers.NewHealthHandler("test",
			handlers.CheckerFunc{ComponentName: "noop", Fn: func(ctx context.Context) error { return nil }}),
		RateLimiter: limiter,
		Mode:        gin.TestMode,
	})

	// Probes never hit the limiter regardless of volume.
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}
