// Package http assembles the gin route tree and HTTP server of the
// LegisGraph API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LegisGraph/internal/interfaces/http/handlers"
	"github.com/turtacn/LegisGraph/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
// Nil handlers leave their routes unregistered, so a process can expose
// only the slices it serves.
type RouterConfig struct {
	DocumentHandler   *handlers.DocumentHandler
	ExtractionHandler *handlers.ExtractionHandler
	SearchHandler     *handlers.SearchHandler
	HealthHandler     *handlers.HealthHandler

	Logger  logging.Logger
	Metrics *prometheus.AppMetrics

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	RateLimiter *middleware.RateLimiter
	CORS        *middleware.CORSConfig

	// Mode is the gin mode: debug, release, or test.
	Mode string
}

// NewRouter builds the complete route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	corsCfg := middleware.DefaultCORSConfig()
	if cfg.CORS != nil {
		corsCfg = *cfg.CORS
	}
	r.Use(middleware.CORS(corsCfg))

	// Probes and scrape endpoint sit outside the API group so the rate
	// limiter never starves them.
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1")
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.Handler())
	}

	if h := cfg.DocumentHandler; h != nil {
		docs := api.Group("/documents")
		docs.POST("", h.Ingest)
		docs.GET("", h.List)
		docs.GET("/:documentID", h.Get)
		docs.DELETE("/:documentID", h.Delete)
	}

	if h := cfg.ExtractionHandler; h != nil {
		runs := api.Group("/extractions")
		runs.POST("", h.Start)
		runs.GET("", h.List)
		runs.GET("/status", h.StatusCounts)
		runs.GET("/:runID", h.Get)
		runs.GET("/:runID/results", h.Results)
		runs.POST("/:runID/export", h.Export)
		runs.GET("/:runID/artifacts/:name", h.Artifact)
		runs.POST("/:runID/share", h.Share)
	}

	if h := cfg.SearchHandler; h != nil {
		api.GET("/search/entities", h.Entities)
		api.GET("/search/relations", h.Relations)
		api.GET("/graph/stats", h.GraphStats)
		api.GET("/graph/related", h.Related)
	}

	return r
}
