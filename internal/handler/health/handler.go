package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Checker reports whether a dependency can serve traffic.
type Checker interface {
	PingContext(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) PingContext(ctx context.Context) error { return f(ctx) }

const checkTimeout = 2 * time.Second

type Handler struct {
	checks map[string]Checker
}

// NewHandler takes the named dependencies readiness depends on. With none, the
// service is ready as soon as it is alive.
func NewHandler(checks map[string]Checker) *Handler {
	return &Handler{checks: checks}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check.PingContext(ctx); err != nil {
			results[name] = "DOWN"
			ready = false
			continue
		}
		results[name] = "UP"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "checks": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP", "checks": results})
}
