package main

import (
	"bytes"
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/app"
	"github.com/charlesng35/l2cache/internal/cache"
	"github.com/charlesng35/l2cache/internal/models"
)

func testConfig(t *testing.T, backend string) *app.Config {
	t.Helper()
	return &app.Config{
		Server:   app.ServerConfig{Port: 8000},
		Database: app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "l2cache.sqlite")},
		Cache: app.CacheConfig{
			Backend:         backend,
			DefaultLifetime: time.Hour,
		},
		Maintenance: app.MaintenanceConfig{PurgeSchedule: "@every 10m", Timeout: time.Minute},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Mapping: app.MappingConfig{SampleCatalog: true},
	}
}

func TestBootstrapRuntimeServesSampleCatalog(t *testing.T) {
	cfg := testConfig(t, "database")
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.IsType(t, &cache.DatabaseStore{}, stack.Store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/entities/"+models.ClassAttractionInfo+"/info-3", nil)
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ok, err := stack.Cache.ContainsEntity(context.Background(), models.ClassAttractionLocationInfo, "info-3")
	require.NoError(t, err)
	require.True(t, ok)

	rec = httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, stack.Cleaner.RunOnce(context.Background()))
}

func TestBootstrapRuntimeRejectsUnreachableRedis(t *testing.T) {
	cfg := testConfig(t, "redis")
	cfg.Cache.Redis = app.RedisCacheConfig{Address: "127.0.0.1:1", Timeout: 200 * time.Millisecond}

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver: "MariaDB",
		MySQL: app.DBAuthConfig{
			Host:     " db.internal ",
			Port:     3307,
			Database: "catalog",
			Username: "l2cache",
			Password: "secret",
		},
	}}
	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 3307, dbCfg.Port)
	require.Equal(t, "catalog", dbCfg.Name)

	cfg = &app.Config{Database: app.DatabaseConfig{Driver: "postgresql", Postgres: app.DBAuthConfig{Host: "pg"}}}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "pg", dbCfg.Host)

	dbCfg = convertDatabaseConfig(&app.Config{})
	require.Equal(t, "sqlite", dbCfg.Driver)
}

func TestLoadApplicationConfig(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9321\n"), 0o600))

	cfg, err := loadApplicationConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9321, cfg.Server.Port)
}

func TestParseOptions(t *testing.T) {
	var out bytes.Buffer
	opts, err := parseOptions([]string{"-config", "/etc/l2cache", "-port", "9000", "-check-config"}, &out)
	require.NoError(t, err)
	require.Equal(t, options{configPath: "/etc/l2cache", port: 9000, checkConfig: true}, opts)

	_, err = parseOptions([]string{"serve"}, &out)
	require.ErrorContains(t, err, "unexpected arguments: serve")

	_, err = parseOptions([]string{"-h"}, &out)
	require.ErrorIs(t, err, flag.ErrHelp)
}

func TestRunCheckConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9321\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-config", dir, "-port", "9400", "-check-config"}, &out))
	require.Equal(t, "configuration ok: database=sqlite cache=memory port=9400\n", out.String())

	err := run(context.Background(), []string{"-config", dir, "-port", "70000", "-check-config"}, &out)
	require.Error(t, err)
}

func TestServeStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, zap.NewNop()) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
