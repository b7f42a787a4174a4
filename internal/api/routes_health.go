package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/l2cache/internal/app"
	"github.com/charlesng35/l2cache/internal/monitoring"
)

// registerHealthRoutes mounts the probes at the root and under /api. /health merges liveness and
// readiness into one summary without per-check details.
func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if cfg == nil {
		return
	}

	var manager *monitoring.HealthManager
	if cfg.Monitoring.Health.Enabled && mon != nil {
		manager = mon.Health()
	}

	for _, router := range []gin.IRouter{r, r.Group("/api")} {
		if manager == nil {
			router.GET("/health", disabledHealthHandler)
			router.GET("/health/live", disabledHealthHandler)
			router.GET("/health/ready", disabledHealthHandler)
			continue
		}
		router.GET("/health", healthHandler(func(ctx context.Context) monitoring.HealthReport {
			return monitoring.MergeReports(manager.EvaluateLiveness(ctx), manager.EvaluateReadiness(ctx))
		}, false))
		router.GET("/health/live", healthHandler(manager.EvaluateLiveness, true))
		router.GET("/health/ready", healthHandler(manager.EvaluateReadiness, true))
	}
}

func healthHandler(evaluate func(context.Context) monitoring.HealthReport, detailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := evaluate(c.Request.Context())
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}

		body := gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checked_at": time.Now().UTC(),
		}
		if detailed {
			body["checks"] = report.Checks
		}
		c.JSON(status, body)
	}
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
