// Package http serves the SDK's debug endpoints: Prometheus metrics, health
// checks and pprof, for long-running consumers such as `contentctl events tail`.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/turtacn/contentsdk/internal/interfaces/http/handlers"
	"github.com/turtacn/contentsdk/internal/interfaces/http/middleware"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// Router HTTP 路由器
type Router struct {
	engine        *gin.Engine
	addr          string
	registry      *prometheus.Registry
	healthHandler *handlers.HealthHandler
	logger        logger.Logger
	server        *http.Server
}

// NewRouter 创建路由器. Metrics are served from registry only.
func NewRouter(addr string, registry *prometheus.Registry, healthHandler *handlers.HealthHandler, log logger.Logger) *Router {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	gin.SetMode(gin.ReleaseMode)
	r := &Router{
		engine:        gin.New(),
		addr:          addr,
		registry:      registry,
		healthHandler: healthHandler,
		logger:        log.WithComponent("DebugServer"),
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.ObservabilityMiddleware(
		otel.Tracer("github.com/turtacn/contentsdk/debug"),
		middleware.NewRequestMetrics(r.registry),
	))

	r.engine.GET("/healthz", r.healthHandler.HealthCheck)
	r.engine.GET("/livez", r.healthHandler.LivenessCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})))
	pprof.Register(r.engine)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Handler exposes the engine for tests.
func (r *Router) Handler() http.Handler { return r.engine }

// Start listens on the configured address and serves until Stop. It returns
// once the listener is bound; serve errors are logged.
func (r *Router) Start(ctx context.Context) (net.Addr, error) {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return nil, err
	}
	r.server = &http.Server{
		Handler:           r.engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	r.logger.Info(ctx, "Starting debug server", logger.String("address", ln.Addr().String()))

	go func() {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error(context.Background(), "Debug server stopped unexpectedly", err)
		}
	}()
	return ln.Addr(), nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info(ctx, "Stopping debug server")
	return r.server.Shutdown(ctx)
}
