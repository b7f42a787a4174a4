package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/l2cache/internal/models"
)

// AutoMigrate creates or updates the table backing the database cache store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.CacheEntry{})
}

// MigrateSampleCatalog creates the joined-inheritance tables of the sample catalog.
func MigrateSampleCatalog(db *gorm.DB) error {
	return db.AutoMigrate(models.SampleModels()...)
}

// SeedData inserts the sample fixtures. Existing rows are left untouched.
func SeedData(db *gorm.DB) error {
	seed := models.AttractionFixtures()

	return db.Transaction(func(tx *gorm.DB) error {
		for _, row := range seed.Attractions {
			if err := tx.Where(models.Attraction{ID: row.ID}).Attrs(row).FirstOrCreate(&models.Attraction{}).Error; err != nil {
				return err
			}
		}
		for _, row := range seed.Infos {
			if err := tx.Where(models.AttractionInfo{ID: row.ID}).Attrs(row).FirstOrCreate(&models.AttractionInfo{}).Error; err != nil {
				return err
			}
		}
		for _, row := range seed.Contacts {
			if err := tx.Where(models.AttractionContactInfo{ID: row.ID}).Attrs(row).FirstOrCreate(&models.AttractionContactInfo{}).Error; err != nil {
				return err
			}
		}
		for _, row := range seed.Locations {
			if err := tx.Where(models.AttractionLocationInfo{ID: row.ID}).Attrs(row).FirstOrCreate(&models.AttractionLocationInfo{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
