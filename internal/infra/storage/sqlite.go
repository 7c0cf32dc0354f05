package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"cambio_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists rate snapshots and user preferences in SQLite
type Storage struct {
	db *gorm.DB
}

// NewStorage creates a new SQLite storage instance. An empty path falls
// back to the per-user config directory.
func NewStorage(path string) (*Storage, error) {
	dbPath := path
	if dbPath == "" {
		var err error
		dbPath, err = getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.Snapshot{}, &domain.Preference{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "CambioGo", "data", "cambiogo.db"), nil
}

// ======================================================================================
// Snapshot Operations
// ======================================================================================

// SaveSnapshot overwrites the snapshot stored under key with a fresh expiry.
func (s *Storage) SaveSnapshot(key string, payload []byte, ttl time.Duration) error {
	now := time.Now()
	snapshot := domain.Snapshot{
		Key:       key,
		Payload:   string(payload),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return s.db.Save(&snapshot).Error
}

// LoadSnapshot returns the payload under key, or nil when the key is
// absent or its row has expired. Expired rows are purged on read.
func (s *Storage) LoadSnapshot(key string) ([]byte, error) {
	var snapshot domain.Snapshot
	err := s.db.First(&snapshot, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(snapshot.ExpiresAt) {
		s.db.Delete(&snapshot)
		return nil, nil
	}

	return []byte(snapshot.Payload), nil
}

// ======================================================================================
// Preference Operations
// ======================================================================================

// SavePreference saves a user preference
func (s *Storage) SavePreference(key, value string) error {
	pref := domain.Preference{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&pref).Error
}

// GetPreference returns the stored value, or "" when the key is absent.
func (s *Storage) GetPreference(key string) (string, error) {
	var pref domain.Preference
	err := s.db.First(&pref, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return pref.Value, err
}
