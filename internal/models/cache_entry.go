package models

import (
	"time"
)

// CacheEntry is one row of the database-backed cache store. Entries hold
// serialized resolver payloads (object metadata, catalog case types) keyed by
// the lookup they answer. A zero ExpiresAt means the entry never expires.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the entry's expiry passed before the given moment.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
