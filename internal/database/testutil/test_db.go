package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/l2cache/internal/database"
)

// TestDBOption adds a schema step to MustOpenTestDB.
type TestDBOption func(*[]func(*gorm.DB) error)

// WithAutoMigrate creates the cache_entries table used by the database store.
func WithAutoMigrate() TestDBOption {
	return func(steps *[]func(*gorm.DB) error) {
		*steps = append(*steps, database.AutoMigrate)
	}
}

// WithSampleCatalog creates the empty joined-inheritance tables of the sample catalog.
func WithSampleCatalog() TestDBOption {
	return func(steps *[]func(*gorm.DB) error) {
		*steps = append(*steps, database.MigrateSampleCatalog)
	}
}

// WithSeedData migrates the cache table and the sample catalog, then inserts the fixtures.
func WithSeedData() TestDBOption {
	return func(steps *[]func(*gorm.DB) error) {
		*steps = append(*steps, database.AutoMigrateAndSeed)
	}
}

// MustOpenTestDB opens a private shared-cache in-memory SQLite database and applies the
// requested schema steps in order. The connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	var steps []func(*gorm.DB) error
	for _, opt := range opts {
		opt(&steps)
	}

	db, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString()),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	for _, step := range steps {
		require.NoError(t, step(db))
	}
	return db
}
