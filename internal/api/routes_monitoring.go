package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/l2cache/internal/handlers"
)

// registerMonitoringRoutes exposes the cache summary: hit ratios per region kind, store errors,
// timestamp touches and maintenance runs.
func registerMonitoringRoutes(api *gin.RouterGroup, handler *handlers.MonitoringHandler) {
	if handler == nil {
		return
	}
	api.GET("/monitoring/summary", handler.Summary)
}
