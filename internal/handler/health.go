package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type dependencyCheck struct {
	name string
	ping func(ctx context.Context) error
}

type HealthHandler struct {
	checks []dependencyCheck
	logger *zap.Logger
}

func NewHealthHandler(db Pinger, rdb redis.Cmdable, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: []dependencyCheck{
			{name: "database", ping: db.Ping},
			{name: "redis", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		logger: logger.Named("HealthHandler"),
	}
}

// Check pings every dependency with its own timeout and answers 503 when
// any of them fails.
func (h *HealthHandler) Check(c *gin.Context) {
	deps := make(gin.H, len(h.checks))
	healthy := true

	for _, dc := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := dc.ping(ctx)
		cancel()

		if err != nil {
			healthy = false
			deps[dc.name] = "error"
			h.logger.Warn("Dependency check failed", zap.String("dependency", dc.name), zap.Error(err))
			continue
		}
		deps[dc.name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "dependencies": deps})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "dependencies": deps})
}
