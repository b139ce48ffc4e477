package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/procurement/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency the server cannot work without
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SystemHandler serves liveness and readiness probes
type SystemHandler struct {
	version string
	checks  []HealthCheck
}

func NewSystemHandler(version string, checks ...HealthCheck) *SystemHandler {
	return &SystemHandler{version: version, checks: checks}
}

// Ping answers liveness probes without touching dependencies
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Health runs every check concurrently and answers 503 when one fails
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(h.checks))
		healthy = true
	)
	var g errgroup.Group
	for _, hc := range h.checks {
		g.Go(func() error {
			err := hc.Check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				healthy = false
				results[hc.Name] = "error"
				logger.RequestLogger(c).Warn("health check failed", zap.String("check", hc.Name), zap.Error(err))
				return nil
			}
			results[hc.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"version": h.version,
		"time":    time.Now().Format(time.RFC3339),
		"checks":  results,
	})
}
