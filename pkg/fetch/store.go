package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/matzehuels/stackpm/pkg/cache"
)

// Store is the local machine credential store: one JSON file per origin,
// readable by the owner only.
type Store struct {
	mu      sync.RWMutex
	baseDir string
}

type storedCredentials struct {
	Origin string `json:"origin"`
	Credentials
}

// NewStore opens a credential store. If baseDir is empty it defaults to
// ~/.config/stackpm/credentials/.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "stackpm", "credentials")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) path(origin string) string {
	return filepath.Join(s.baseDir, cache.Digest(origin, 24)+".json")
}

// Get returns the stored credentials for origin, or false if there are none.
func (s *Store) Get(_ context.Context, origin string) (Credentials, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(origin))
	if os.IsNotExist(err) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, fmt.Errorf("read credentials: %w", err)
	}
	var stored storedCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return Credentials{}, false, fmt.Errorf("parse credentials: %w", err)
	}
	if stored.Origin != origin {
		return Credentials{}, false, nil
	}
	return stored.Credentials, true, nil
}

// Set stores credentials for origin.
func (s *Store) Set(_ context.Context, origin string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(storedCredentials{Origin: origin, Credentials: creds}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(s.path(origin), data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Delete removes the credentials stored for origin.
func (s *Store) Delete(_ context.Context, origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(origin)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// Path returns the base directory of the store.
func (s *Store) Path() string { return s.baseDir }
