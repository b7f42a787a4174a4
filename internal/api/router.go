package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/l2cache/internal/app"
	"github.com/charlesng35/l2cache/internal/handlers"
	"github.com/charlesng35/l2cache/internal/middleware"
	"github.com/charlesng35/l2cache/internal/monitoring"
	"github.com/charlesng35/l2cache/internal/orm"
)

// NewRouter builds the Gin engine, wires middleware and registers the admin routes.
func NewRouter(cfg *app.Config, em *orm.EntityManager, mon *monitoring.Module) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if em == nil {
		return nil, fmt.Errorf("entity manager must be provided")
	}

	metricsEndpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if metricsEndpoint == "" {
		metricsEndpoint = "/metrics"
	}

	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger("/health", "/health/live", "/health/ready", metricsEndpoint))
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, cfg, mon)

	api := r.Group("/api")

	cacheHandler, err := handlers.NewCacheHandler(em.Cache())
	if err != nil {
		return nil, err
	}
	registerCacheRoutes(api, cacheHandler)

	entityHandler, err := handlers.NewEntityHandler(em)
	if err != nil {
		return nil, err
	}
	registerEntityRoutes(api, entityHandler)

	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(mon, cfg, em.Cache()))

	if cfg.Monitoring.Prometheus.Enabled && mon != nil {
		r.GET(metricsEndpoint, gin.WrapH(mon.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
