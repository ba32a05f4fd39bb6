package opsapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facecat/facecat/internal/auth"
	"github.com/facecat/facecat/internal/observability"
)

// HealthChecker is pinged by /readyz; each registered collaborator
// reports its own connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config bundles the server's wiring: the auth key, the collaborators
// /readyz checks, and the progress hub /ws/progress serves from.
type Config struct {
	Port   int
	APIKey string
	Checks map[string]HealthChecker
	Hub    *Hub
}

// NewRouter builds the ops-only gin engine (§3 ambient stack: this
// reuses the teacher's HTTP stack for operational visibility, not for
// serving catalogue read queries, which are out of scope).
func NewRouter(cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggingMiddleware())
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		for name, checker := range cfg.Checks {
			if err := checker.Ping(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
			} else {
				checks[name] = "ok"
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": map[bool]string{true: "ready", false: "not ready"}[healthy], "checks": checks})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	progress := r.Group("/ws")
	progress.Use(auth.APIKeyMiddleware(cfg.APIKey))
	if cfg.Hub != nil {
		progress.GET("/progress", cfg.Hub.HandleWS)
	}

	return r
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		slog.Info("ops request", "method", c.Request.Method, "path", path, "status", status, "duration", duration.String())
		observability.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, fmt.Sprintf("%d", status)).Observe(duration.Seconds())
	}
}
