package settings

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/blindscan/scanhost/internal/db"
)

// Well-known setting keys.
const (
	KeySharedFolder      = "shared_folder"
	KeyAutoSaveShared    = "auto_save_shared_folder"
	KeyDefaultDPI        = "default_dpi"
	KeyAdminPasswordHash = "admin_password_hash"
)

// Store layers a small in-memory cache over the settings table so hot reads
// like the shared-folder policy never hit sqlite. Writes go through to the
// database first.
type Store struct {
	db *db.DB

	mu     sync.RWMutex
	values map[string]string
}

// NewStore loads all persisted settings, then fills gaps with the supplied
// startup defaults without persisting them. Config stays the fallback until
// a value is explicitly saved.
func NewStore(ctx context.Context, database *db.DB, defaults map[string]string) (*Store, error) {
	s := &Store{
		db:     database,
		values: make(map[string]string),
	}
	for k, v := range defaults {
		s.values[k] = v
	}

	persisted, err := database.Settings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	for _, setting := range persisted {
		s.values[setting.Key] = setting.Value
	}
	return s, nil
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok
}

func (s *Store) GetBool(key string) bool {
	v, ok := s.Get(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[settings] invalid bool for %s: %q", key, v)
		return false
	}
	return b
}

// Set persists the value and then updates the cache. A failed write leaves
// the cache untouched.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.db.Settings.Set(ctx, key, value, false); err != nil {
		return err
	}

	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

// SetSecret persists an encrypted-flagged value without caching it.
func (s *Store) SetSecret(ctx context.Context, key, value string) error {
	return s.db.Settings.Set(ctx, key, value, true)
}

// GetSecret reads an encrypted-flagged value straight from the database.
func (s *Store) GetSecret(ctx context.Context, key string) (string, error) {
	setting, err := s.db.Settings.Get(ctx, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", sql.ErrNoRows
		}
		return "", err
	}
	return setting.Value, nil
}

// Snapshot returns a copy of all cached settings.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// SharedFolder reports the auto-save target and whether the policy is on.
func (s *Store) SharedFolder() (string, bool) {
	dir, _ := s.Get(KeySharedFolder)
	return dir, s.GetBool(KeyAutoSaveShared)
}
