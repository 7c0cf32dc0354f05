package domain

import (
	"time"
)

// Snapshot is a persisted aggregation result with an expiry. One row per
// key; the store treats an expired row as absent on read.
type Snapshot struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Payload   string    `json:"payload"` // JSON-encoded AggregationResult
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

// Preference is a small user-scoped setting (Key-Value), e.g. the last
// conversion entry the shell should restore.
type Preference struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
