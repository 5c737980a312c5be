package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthRouter(h *HealthHandler) *gin.Engine {
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	return r
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler("1.2.3")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	healthRouter(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestHealthHandler_ReadinessNoCheckers(t *testing.T) {
	h := NewHealthHandler("dev")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	healthRouter(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
}

func TestHealthHandler_ReadinessAllHealthy(t *testing.T) {
	h := NewHealthHandler("dev",
		CheckerFunc{ComponentName: "postgres", Fn: func(ctx context.Context) error { return nil }},
		CheckerFunc{ComponentName: "redis", Fn: func(ctx context.Context) error { return nil }},
	)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	healthRouter(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	require.Len(t, resp.Components, 2)
	assert.Equal(t, "healthy", resp.Components["postgres"].Status)
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
}

func TestHealthHandler_ReadinessOneDown(t *testing.T) {
	h := NewHealthHandler("dev",
		CheckerFunc{ComponentName: "postgres", Fn: func(ctx context.Context) error { return nil }},
		CheckerFunc{ComponentName: "neo4j", Fn: func(ctx context.Context) error {
			return errors.New("connection refused")
		}},
	)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	healthRouter(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["neo4j"].Status)
	assert.Equal(t, "connection refused", resp.Components["neo4j"].Error)
	assert.Equal(t, "healthy", resp.Components["postgres"].Status)
}
