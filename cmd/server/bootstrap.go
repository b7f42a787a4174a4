package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/l2cache/internal/api"
	"github.com/charlesng35/l2cache/internal/app"
	"github.com/charlesng35/l2cache/internal/app/maintenance"
	"github.com/charlesng35/l2cache/internal/cache"
	"github.com/charlesng35/l2cache/internal/database"
	"github.com/charlesng35/l2cache/internal/monitoring"
	"github.com/charlesng35/l2cache/internal/monitoring/checks"
	"github.com/charlesng35/l2cache/internal/orm"
	"github.com/charlesng35/l2cache/internal/secondlevel"
	"github.com/charlesng35/l2cache/pkg/logger"
)

const probeTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Store      cache.Store
	closeStore func() error
	Monitoring *monitoring.Module
	Cache      *secondlevel.Cache
	Manager    *orm.EntityManager
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, cache store, second-level cache, entity manager,
// maintenance jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Store, stack.closeStore, err = cfg.Cache.OpenStore(stack.DB)
	if err != nil {
		return nil, err
	}
	log.Info("cache store ready", zap.String("backend", cfg.Cache.Backend))

	registry, err := cfg.Mapping.Registry()
	if err != nil {
		return nil, fmt.Errorf("build mapping registry: %w", err)
	}

	stack.Cache, err = secondlevel.New(secondlevel.Options{
		Store:        stack.Store,
		Registry:     registry,
		Lifetimes:    cfg.Cache.Lifetimes(),
		QueryRegion:  cfg.Cache.QueryRegion,
		QueryRegions: cfg.Cache.QueryRegions,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise second-level cache: %w", err)
	}

	stack.Manager, err = orm.New(orm.Options{DB: stack.DB, Cache: stack.Cache})
	if err != nil {
		return nil, fmt.Errorf("initialise entity manager: %w", err)
	}

	var purger maintenance.ExpiredPurger
	if dbStore, ok := stack.Store.(*cache.DatabaseStore); ok {
		purger = dbStore
	}
	stack.Cleaner = maintenance.NewCleaner(purger, stack.Cache,
		maintenance.WithPurgeSchedule(cfg.Maintenance.PurgeSchedule),
		maintenance.WithQueryEvictionSchedule(cfg.Maintenance.QueryEvictionSchedule),
		maintenance.WithTimeout(cfg.Maintenance.Timeout),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	registerHealthChecks(stack)

	stack.Router, err = api.NewRouter(cfg, stack.Manager, stack.Monitoring)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func registerHealthChecks(stack *runtimeStack) {
	health := stack.Monitoring.Health()
	health.RegisterLiveness(checks.Database(stack.DB, probeTimeout))
	health.RegisterReadiness(checks.Database(stack.DB, probeTimeout))
	health.RegisterReadiness(checks.CacheStore(stack.Store, probeTimeout))
	health.RegisterReadiness(checks.Maintenance(0, stack.Cleaner.Jobs()...))
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	if s.closeStore != nil {
		if err := s.closeStore(); err != nil {
			log.Warn("cache store shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Mapping.SampleCatalog {
		err = database.AutoMigrateAndSeed(db)
	} else {
		err = database.AutoMigrate(db)
	}
	if err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
