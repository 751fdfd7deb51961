package model

import "time"

// LocalStorageEntry is one namespaced key/value row used by the SQL-backed
// guest cart storage.
type LocalStorageEntry struct {
	Key       string     `gorm:"column:storage_key;primaryKey;size:191" json:"key"`
	Value     string     `gorm:"type:text;not null" json:"value"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (LocalStorageEntry) TableName() string {
	return "local_storage_entries"
}

// Expired reports whether the entry is past its expiry at now.
func (e *LocalStorageEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}
