package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config contains database connection options.
type Config struct {
	Driver   string
	Path     string // SQLite database path when Driver == sqlite
	DSN      string // Optional DSN override
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string
}

type dialectorFunc func(Config) (gorm.Dialector, error)

var dialectors = map[string]dialectorFunc{
	"sqlite":     sqliteDialector,
	"postgres":   postgresDialector,
	"postgresql": postgresDialector,
	"mysql":      mysqlDialector,
	"mariadb":    mysqlDialector,
}

// Open initialises a gorm.DB using the provided configuration. Unique constraint violations are
// translated to gorm.ErrDuplicatedKey on every driver.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	build, ok := dialectors[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	dialector, err := build(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		if err := enableForeignKeys(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// AutoMigrateAndSeed migrates the cache table and the sample catalog, then loads its fixtures.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := MigrateSampleCatalog(db); err != nil {
		return fmt.Errorf("migrate sample catalog: %w", err)
	}

	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}

	return nil
}
