package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/l2cache/internal/api"
	"github.com/charlesng35/l2cache/internal/app"
	"github.com/charlesng35/l2cache/internal/cache"
	sharedtestutil "github.com/charlesng35/l2cache/internal/database/testutil"
	"github.com/charlesng35/l2cache/internal/monitoring"
	"github.com/charlesng35/l2cache/internal/orm"
	"github.com/charlesng35/l2cache/internal/secondlevel"
	"github.com/charlesng35/l2cache/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by the seeded sample catalog for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	Cache   *secondlevel.Cache
	Manager *orm.EntityManager
	Module  *monitoring.Module
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
// Options adjust the application config before the router is built.
func NewEnv(t *testing.T, opts ...func(*app.Config)) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Cache: app.CacheConfig{Backend: "memory"},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Mapping: app.MappingConfig{SampleCatalog: true},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)

	registry, err := cfg.Mapping.Registry()
	require.NoError(t, err)

	c, err := secondlevel.New(secondlevel.Options{
		Store:        cache.NewMemoryStore(),
		Registry:     registry,
		QueryRegion:  cfg.Cache.QueryRegion,
		QueryRegions: cfg.Cache.QueryRegions,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)

	em, err := orm.New(orm.Options{DB: db, Cache: c, Logger: zap.NewNop()})
	require.NoError(t, err)

	router, err := api.NewRouter(cfg, em, mod)
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Router:  router,
		Cache:   c,
		Manager: em,
		Module:  mod,
	}
}

// Queries returns the number of SQL statements issued so far.
func (e *Env) Queries() int64 {
	return e.Manager.Counter().Count()
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding automatically.
func (e *Env) Request(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
