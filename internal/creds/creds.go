// Package creds manages the persisted credential pair identifying an
// authenticated session. The pair is overwritten on login and on each
// successful refresh, and deleted on logout or unrecoverable refresh failure.
package creds

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNoCredentials is returned when no pair is stored.
var ErrNoCredentials = errors.New("no credentials stored")

// Pair holds the access/refresh token set issued by the backend.
// The tokens are opaque strings; the client never inspects them.
type Pair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	SavedAt      time.Time `json:"saved_at,omitempty"`
}

// Store is the persistence boundary for the credential pair.
type Store interface {
	// Load returns the stored pair, or ErrNoCredentials if none exists.
	Load() (*Pair, error)
	// Save overwrites the stored pair.
	Save(p *Pair) error
	// Clear deletes the stored pair. Clearing an empty store is not an error.
	Clear() error
}

// FileStore persists the pair as JSON under the user's home directory,
// surviving restarts the way browser storage survives reloads.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at ~/.deskmate/credentials.json.
func NewFileStore() (*FileStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &FileStore{path: filepath.Join(home, ".deskmate", "credentials.json")}, nil
}

// NewFileStoreAt creates a store at an explicit path. Used by tests and by
// the --credentials-file override.
func NewFileStoreAt(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the pair from disk.
func (s *FileStore) Load() (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, err
	}

	var p Pair
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.AccessToken == "" && p.RefreshToken == "" {
		return nil, ErrNoCredentials
	}
	return &p, nil
}

// Save writes the pair to disk with 0600 permissions.
func (s *FileStore) Save(p *Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p == nil {
		return errors.New("nil credential pair")
	}
	stored := *p
	if stored.SavedAt.IsZero() {
		stored.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// Clear removes the credential file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu   sync.Mutex
	pair *Pair
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// NewMemStoreWith creates an in-memory store holding the given pair.
func NewMemStoreWith(p Pair) *MemStore {
	return &MemStore{pair: &p}
}

func (s *MemStore) Load() (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair == nil {
		return nil, ErrNoCredentials
	}
	p := *s.pair
	return &p, nil
}

func (s *MemStore) Save(p *Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		return errors.New("nil credential pair")
	}
	stored := *p
	s.pair = &stored
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = nil
	return nil
}
