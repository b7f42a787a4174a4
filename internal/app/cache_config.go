package app

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/l2cache/internal/cache"
	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/models"
	"github.com/charlesng35/l2cache/internal/secondlevel"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:   strings.TrimSpace(c.Redis.Address),
		Username:  strings.TrimSpace(c.Redis.Username),
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		TLS:       c.Redis.TLS,
		Timeout:   c.Redis.Timeout,
		KeyPrefix: c.KeyPrefix,
	}
}

// Lifetimes converts region lifetimes into the second-level cache representation.
func (c CacheConfig) Lifetimes() secondlevel.Lifetimes {
	lifetimes := secondlevel.Lifetimes{Default: c.DefaultLifetime}
	if len(c.Regions) > 0 {
		lifetimes.Regions = make(map[string]time.Duration, len(c.Regions))
		for name, region := range c.Regions {
			lifetimes.Regions[name] = region.Lifetime
		}
	}
	return lifetimes
}

// OpenStore builds the physical store selected by Backend. The returned close function releases
// any connection the store holds and is never nil.
func (c CacheConfig) OpenStore(db *gorm.DB) (cache.Store, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "", "memory":
		return cache.NewMemoryStore(), noop, nil
	case "database":
		if db == nil {
			return nil, noop, fmt.Errorf("cache: database backend requires a database handle")
		}
		return cache.NewDatabaseStore(db), noop, nil
	case "redis":
		client, err := cache.NewRedisClient(c.RedisClientConfig())
		if err != nil {
			return nil, noop, fmt.Errorf("cache: connect redis: %w", err)
		}
		return client, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("cache: unsupported backend %q", c.Backend)
	}
}

// Registry builds the mapping registry from the sample catalog and configured classes.
func (m MappingConfig) Registry() (*mapping.Registry, error) {
	var classes []mapping.ClassMetadata
	if m.SampleCatalog {
		classes = append(classes, models.AttractionCatalog()...)
	}
	classes = append(classes, m.Classes...)
	return mapping.NewRegistry(classes...)
}
