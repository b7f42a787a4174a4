package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/l2cache/internal/cache"
	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/database/testutil"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogEncoding)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, "catalog", cfg.Database.Postgres.Database)

	require.Equal(t, "redis", cfg.Cache.Backend)
	require.Equal(t, "catalog:", cfg.Cache.KeyPrefix)
	require.Equal(t, 30*time.Minute, cfg.Cache.DefaultLifetime)
	require.Equal(t, "catalog_queries", cfg.Cache.QueryRegion)
	require.Equal(t, []string{"reports", "search"}, cfg.Cache.QueryRegions)
	require.Equal(t, 5*time.Minute, cfg.Cache.Regions["attraction_info"].Lifetime)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.True(t, cfg.Cache.Redis.TLS)
	require.Equal(t, 2*time.Second, cfg.Cache.Redis.Timeout)

	require.Empty(t, cfg.Maintenance.PurgeSchedule)
	require.Equal(t, "@hourly", cfg.Maintenance.QueryEvictionSchedule)
	require.Equal(t, 30*time.Second, cfg.Maintenance.Timeout)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Monitoring.Health.Enabled)

	require.True(t, cfg.Mapping.SampleCatalog)
	require.Len(t, cfg.Mapping.Classes, 1)
	venue := cfg.Mapping.Classes[0]
	require.Equal(t, "Venue", venue.Name)
	require.Equal(t, "venues", venue.Table)
	require.Equal(t, []string{"name", "city"}, venue.Fields)
	require.True(t, venue.Cacheable)
	require.Equal(t, "venue_region", venue.Region)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "json", cfg.Server.LogEncoding)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, "l2cache:", cfg.Cache.KeyPrefix)
	require.Equal(t, time.Hour, cfg.Cache.DefaultLifetime)
	require.Equal(t, "@every 10m", cfg.Maintenance.PurgeSchedule)
	require.Equal(t, 2*time.Minute, cfg.Maintenance.Timeout)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.True(t, cfg.Mapping.SampleCatalog)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("L2CACHE_SERVER_PORT", "9191")
	t.Setenv("L2CACHE_CACHE_BACKEND", "database")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, "database", cfg.Cache.Backend)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:  ServerConfig{Port: 8000},
			Cache:   CacheConfig{Backend: "memory"},
			Mapping: MappingConfig{SampleCatalog: true},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Cache.Backend = "memcached"
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Cache.Backend = "redis"
	require.ErrorContains(t, cfg.Validate(), "cache.redis.address")

	cfg = valid()
	cfg.Mapping.SampleCatalog = false
	require.ErrorContains(t, cfg.Validate(), "no classes")

	cfg = valid()
	cfg.Mapping.Classes = []mapping.ClassMetadata{{Name: "Bad Name", Table: "bad"}}
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Cache.QueryRegions = []string{"reports", "entity:attraction"}
	require.ErrorContains(t, cfg.Validate(), "query_regions[1]")
}

func TestCacheConfigAdapters(t *testing.T) {
	cfg := CacheConfig{
		KeyPrefix:       "catalog:",
		DefaultLifetime: time.Hour,
		Regions:         map[string]RegionConfig{"attraction_info": {Lifetime: time.Minute}},
		Redis: RedisCacheConfig{
			Address:  " redis:6379 ",
			Username: "user",
			Password: "pass",
			DB:       3,
			TLS:      true,
			Timeout:  time.Second,
		},
	}

	redis := cfg.RedisClientConfig()
	require.Equal(t, "redis:6379", redis.Address)
	require.Equal(t, "user", redis.Username)
	require.Equal(t, "pass", redis.Password)
	require.Equal(t, 3, redis.DB)
	require.True(t, redis.TLS)
	require.Equal(t, time.Second, redis.Timeout)
	require.Equal(t, "catalog:", redis.KeyPrefix)

	lifetimes := cfg.Lifetimes()
	require.Equal(t, time.Minute, lifetimes.For("attraction_info"))
	require.Equal(t, time.Hour, lifetimes.For("attraction"))
}

func TestOpenStoreSelectsBackend(t *testing.T) {
	store, closeStore, err := CacheConfig{Backend: "memory"}.OpenStore(nil)
	require.NoError(t, err)
	require.IsType(t, &cache.MemoryStore{}, store)
	require.NoError(t, closeStore())

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, closeStore, err = CacheConfig{Backend: "database"}.OpenStore(db)
	require.NoError(t, err)
	require.IsType(t, &cache.DatabaseStore{}, store)
	require.NoError(t, closeStore())

	_, _, err = CacheConfig{Backend: "database"}.OpenStore(nil)
	require.Error(t, err)

	_, _, err = CacheConfig{Backend: "memcached"}.OpenStore(nil)
	require.ErrorContains(t, err, "unsupported backend")
}

func TestMappingRegistry(t *testing.T) {
	registry, err := MappingConfig{
		SampleCatalog: true,
		Classes: []mapping.ClassMetadata{
			{Name: "Venue", Table: "venues", Fields: []string{"name"}, Cacheable: true},
		},
	}.Registry()
	require.NoError(t, err)

	region, err := registry.RegionFor("AttractionContactInfo")
	require.NoError(t, err)
	require.Equal(t, "attraction_info", region)

	region, err = registry.RegionFor("Venue")
	require.NoError(t, err)
	require.Equal(t, "venue", region)

	_, err = MappingConfig{}.Registry()
	require.NoError(t, err)
}
