package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketState = []byte("state")

// State keys. Each is an independent slot; there is no cross-key transaction.
const (
	keyAccessToken = "accessToken"
	keyGuest       = "isGuest"
	keyTheme       = "theme"
	keyInstallID   = "installId"
)

// StateStore persists the client's durable state (access token, guest flag,
// theme preference, install identifier) in BoltDB.
//
// The token slot is read on every outgoing request and written only by
// login/logout.
type StateStore struct {
	db *bolt.DB
	mu sync.RWMutex

	// In-memory mirror; authoritative when db is nil (memory-only mode)
	cache map[string]string
}

// Open opens the state store under dataDir. An empty dataDir yields a
// memory-only store with no persistence (used by tests).
func Open(dataDir string) (*StateStore, error) {
	if dataDir == "" {
		return &StateStore{cache: make(map[string]string)}, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "folio.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &StateStore{db: db, cache: make(map[string]string)}
	s.warmCache()
	return s, nil
}

func (s *StateStore) warmCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			s.cache[string(k)] = string(v)
			return nil
		})
	})
}

func (s *StateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *StateStore) get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[key]
}

func (s *StateStore) set(key, value string) error {
	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		return b.Put([]byte(key), []byte(value))
	})
}

func (s *StateStore) delete(key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b != nil {
			return b.Delete([]byte(key))
		}
		return nil
	})
}

// === Access token ===

// Token returns the persisted access token, or "" when absent
func (s *StateStore) Token() string {
	return s.get(keyAccessToken)
}

// SetToken persists the access token
func (s *StateStore) SetToken(token string) error {
	return s.set(keyAccessToken, token)
}

// ClearToken removes the persisted access token
func (s *StateStore) ClearToken() error {
	return s.delete(keyAccessToken)
}

// === Guest flag ===

// Guest returns the persisted guest-mode flag
func (s *StateStore) Guest() bool {
	return s.get(keyGuest) == "true"
}

// SetGuest persists the guest-mode flag
func (s *StateStore) SetGuest(guest bool) error {
	if !guest {
		return s.delete(keyGuest)
	}
	return s.set(keyGuest, "true")
}

// === Theme ===

// DarkTheme returns the persisted theme preference
func (s *StateStore) DarkTheme() bool {
	return s.get(keyTheme) == "dark"
}

// SetDarkTheme persists the theme preference
func (s *StateStore) SetDarkTheme(dark bool) error {
	if dark {
		return s.set(keyTheme, "dark")
	}
	return s.set(keyTheme, "light")
}

// === Install identifier ===

// InstallID returns the stable per-install identifier, generating and
// persisting one on first use.
func (s *StateStore) InstallID() string {
	if id := s.get(keyInstallID); id != "" {
		return id
	}
	id := uuid.NewString()
	s.set(keyInstallID, id)
	return id
}
