// Package middleware provides the gin middleware chain of the HTTP API:
// request IDs, request logging, CORS, rate limiting, and metrics.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/prometheus"
)

// RequestIDHeader carries the request ID in and out of the API.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the gin context key the request ID is stored under.
const requestIDKey = "request_id"

// RequestID returns middleware that accepts an inbound request ID or mints
// one, stores it on the context, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// LoggingConfig holds configuration for the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are high-frequency paths excluded from logging.
	SkipPaths []string

	// SlowThreshold promotes requests above this duration to Warn.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig returns the logging configuration used when the
// router is given none.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// RequestLogging returns middleware that logs one line per request. 5xx
// responses log at Error, 4xx and slow requests at Warn, the rest at Info.
func RequestLogging(logger logging.Logger, cfg LoggingConfig) gin.HandlerFunc {
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = DefaultLoggingConfig().SlowThreshold
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Int("status", status),
			logging.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
			logging.Int("bytes", c.Writer.Size()),
			logging.String("client_ip", c.ClientIP()),
			logging.String("request_id", GetRequestID(c)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("HTTP request", fields...)
		case status >= 400 || elapsed > cfg.SlowThreshold:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

// Metrics returns middleware that records request counts, latency, and
// sizes. The route template is the path label so parameterized routes do
// not explode label cardinality.
func Metrics(metrics *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		prometheus.RecordHTTPRequest(metrics, c.Request.Method, path,
			c.Writer.Status(), time.Since(start),
			c.Request.ContentLength, int64(c.Writer.Size()))
	}
}
