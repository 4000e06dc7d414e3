package models

import (
	"time"
)

// CacheEntry represents a counter or value stored in the database-backed cache.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:191"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
