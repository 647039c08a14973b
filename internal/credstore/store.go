// Package credstore persists OAuth credentials per application.
//
// All credentials live in a single JSON file mapping application name to
// entry. Save is read-merge-write over the whole file; for a single-user
// CLI the last writer wins and no locking is attempted.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tasak/tasak/internal/config"
)

// Entry is one application's stored credential.
type Entry struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresAt is the access token expiry in epoch seconds.
	ExpiresAt int64 `json:"expires_at"`
}

// Expired reports whether the access token is past (or within margin of)
// its expiry.
func (e Entry) Expired(now time.Time, margin time.Duration) bool {
	return now.After(time.Unix(e.ExpiresAt, 0).Add(-margin))
}

// Store reads and writes the credential file.
type Store struct {
	path string
}

// New returns a store at the default per-user location
// (~/.tasak/auth.json).
func New() (*Store, error) {
	dir, err := config.GlobalDir()
	if err != nil {
		return nil, err
	}
	return NewAt(filepath.Join(dir, "auth.json")), nil
}

// NewAt returns a store backed by an explicit file path. Used by tests.
func NewAt(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Load returns the entry for app. The second return is false when the
// file or the app's entry is absent; that is not an error.
func (s *Store) Load(app string) (Entry, bool, error) {
	all, err := s.readAll()
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := all[app]
	return entry, ok, nil
}

// Save writes the entry for app, preserving every other application's
// credentials.
func (s *Store) Save(app string, entry Entry) error {
	all, err := s.readAll()
	if err != nil {
		return err
	}
	all[app] = entry
	return s.writeAll(all)
}

// Clear removes the entry for app. It reports whether an entry existed.
func (s *Store) Clear(app string) (bool, error) {
	all, err := s.readAll()
	if err != nil {
		return false, err
	}
	if _, ok := all[app]; !ok {
		return false, nil
	}
	delete(all, app)
	return true, s.writeAll(all)
}

// Apps returns the names of all applications with stored credentials.
func (s *Store) Apps() ([]string, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) readAll() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}
	all := map[string]Entry{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parsing credential file %s: %w", s.path, err)
	}
	return all, nil
}

func (s *Store) writeAll(all map[string]Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	// Owner read/write only; the file holds bearer tokens.
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	return os.Chmod(s.path, 0o600)
}
