package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health answers a bare liveness probe: the process can serve HTTP.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Liveness mirrors Health; it never checks dependencies, only that the
// process's own event loop is responsive.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness checks each registered dependency and reports 503 if any
// one of them is degraded, per spec.md §6.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(gin.H, len(h.deps))
	healthy := true
	for _, dep := range h.deps {
		if err := dep.pinger.Ping(ctx); err != nil {
			checks[dep.name] = err.Error()
			healthy = false
			continue
		}
		checks[dep.name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": checks})
}
