package api_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/l2cache/internal/api"
	"github.com/charlesng35/l2cache/internal/app"
	"github.com/charlesng35/l2cache/internal/handlers/testutil"
	"github.com/charlesng35/l2cache/internal/monitoring"
)

func TestRouterHealthEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/api/health"} {
		w := env.Request(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path+": "+w.Body.String())
	}
}

func TestRouterHealthReportsFailingProbe(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Module.Health().RegisterReadiness(monitoring.NewCheck("cache_store", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "store offline"}
	}))

	w := env.Request(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "store offline")

	w = env.Request(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"status":"degraded"`)
	require.NotContains(t, w.Body.String(), "store offline")

	w = env.Request(http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterHealthDisabled(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Monitoring.Health.Enabled = false
	})

	for _, path := range []string{"/health", "/api/health/ready"} {
		w := env.Request(http.MethodGet, path, nil)
		require.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/cache/regions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.True(t,
		strings.Contains(body, `l2cache_api_latency_seconds_count{method="GET",path="api/cache/regions",status="200"}`),
		"metrics output missing latency series: %s", body)
	require.Contains(t, body, `l2cache_cache_region_info{kind="collection",region="attraction__infos"} 1`)
}

func TestRouterMonitoringSummary(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/monitoring/summary", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "attraction__infos")
}

func TestRouterNotFound(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/unknown", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := api.NewRouter(nil, nil, nil)
	require.Error(t, err)

	_, err = api.NewRouter(&app.Config{}, nil, nil)
	require.Error(t, err)
}
