// Package handlers implements the debug server's HTTP handlers.
package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/contentsdk/pkg/logger"
)

const checkTimeout = 3 * time.Second

// CheckFunc reports the health of one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	log    logger.Logger
}

// NewHealthHandler creates a handler with no checks registered.
func NewHealthHandler(log logger.Logger) *HealthHandler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &HealthHandler{checks: make(map[string]CheckFunc), log: log.WithComponent("HealthHandler")}
}

// Register adds or replaces the check called name.
func (h *HealthHandler) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// HealthCheck runs every registered check concurrently and answers 503 if any fails.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := "healthy"
	httpStatus := http.StatusOK
	checks := h.performChecks(c.Request.Context())
	for name, result := range checks {
		if result != "ok" {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			h.log.Warn(c.Request.Context(), "Health check failed", logger.String("check", name), logger.String("result", result))
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// LivenessCheck answers 200 while the process serves requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	funcs := make([]CheckFunc, len(names))
	for i, name := range names {
		funcs[i] = h.checks[name]
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]string, len(names))
	wg.Add(len(names))
	for i := range names {
		go func(name string, check CheckFunc) {
			defer wg.Done()
			result := "ok"
			if err := check(ctx); err != nil {
				result = "error: " + err.Error()
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(names[i], funcs[i])
	}
	wg.Wait()
	return results
}
