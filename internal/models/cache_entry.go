package models

import (
	"time"

	"gorm.io/datatypes"
)

// CacheEntry is a second-level cache payload stored by the database-backed store.
type CacheEntry struct {
	Key       string         `gorm:"primaryKey;size:256"`
	Value     datatypes.JSON `gorm:"not null"`
	ExpiresAt *time.Time     `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the entry carries an expiry at or before now.
func (e CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// TableName implements gorm's tabler.
func (CacheEntry) TableName() string { return "cache_entries" }
