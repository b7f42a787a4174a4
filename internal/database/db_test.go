package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/l2cache/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestOpenPropagatesDSNErrors(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"})
	require.ErrorContains(t, err, "requires user and database name")
}

func TestOpenTranslatesDuplicateKeys(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	entry := models.CacheEntry{Key: "entity:attraction:attraction-0", Value: []byte(`{}`)}
	require.NoError(t, db.Create(&entry).Error)

	duplicate := models.CacheEntry{Key: entry.Key, Value: []byte(`{}`)}
	err := db.Create(&duplicate).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))
	// Seeding twice must not duplicate rows.
	require.NoError(t, SeedData(db))

	seed := models.AttractionFixtures()
	counts := []struct {
		model interface{}
		want  int
	}{
		{&models.Attraction{}, len(seed.Attractions)},
		{&models.AttractionInfo{}, len(seed.Infos)},
		{&models.AttractionContactInfo{}, len(seed.Contacts)},
		{&models.AttractionLocationInfo{}, len(seed.Locations)},
	}
	for _, tc := range counts {
		var count int64
		require.NoError(t, db.Model(tc.model).Count(&count).Error)
		require.Equalf(t, tc.want, int(count), "rows for %T", tc.model)
	}

	require.True(t, db.Migrator().HasTable(&models.CacheEntry{}))
}

func TestAutoMigrateAndSeedRejectsNilHandle(t *testing.T) {
	require.Error(t, AutoMigrateAndSeed(nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString()),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
