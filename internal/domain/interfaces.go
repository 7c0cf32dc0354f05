package domain

import (
	"time"
)

// SnapshotStore persists aggregation snapshots with a TTL
type SnapshotStore interface {
	// SaveSnapshot overwrites the snapshot under key, expiring after ttl.
	SaveSnapshot(key string, payload []byte, ttl time.Duration) error

	// LoadSnapshot returns the payload under key, or nil when the key is
	// absent or its row has expired.
	LoadSnapshot(key string) ([]byte, error)
}

// PreferenceStore keeps small user-scoped key/value settings
type PreferenceStore interface {
	SavePreference(key, value string) error

	// GetPreference returns the stored value, or "" when the key is absent.
	GetPreference(key string) (string, error)
}
