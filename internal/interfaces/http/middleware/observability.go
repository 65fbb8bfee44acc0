// Package middleware holds gin middleware for the debug server.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestMetrics counts the debug server's own requests.
type RequestMetrics struct {
	Total    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewRequestMetrics registers the request metrics with reg.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	factory := promauto.With(reg)
	return &RequestMetrics{
		Total: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentsdk",
			Subsystem: "debug_server",
			Name:      "requests_total",
			Help:      "Requests served by the debug server.",
		}, []string{"method", "path", "status"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contentsdk",
			Subsystem: "debug_server",
			Name:      "request_duration_seconds",
			Help:      "Latency of debug server requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// ObservabilityMiddleware returns a Gin middleware that traces each request and records its metrics.
// Metrics are labeled with the route template, not the raw path.
// ObservabilityMiddleware 返回一个集成了 Prometheus 指标和 OpenTelemetry 跟踪的 Gin 中间件。
func ObservabilityMiddleware(tracer trace.Tracer, metrics *RequestMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath())
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "not_found"
		}
		metrics.Total.WithLabelValues(c.Request.Method, path, status).Inc()
		metrics.Duration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", path),
			attribute.Int("http.status_code", c.Writer.Status()),
		)
	}
}
