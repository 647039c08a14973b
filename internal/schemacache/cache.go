// Package schemacache persists per-application snapshots of a tool
// server's catalog.
//
// Each application gets one JSON file under ~/.tasak/schemas holding the
// tool definitions plus the time they were fetched. Presence never implies
// freshness: callers check the age against their mode's policy, except
// curated mode which opts into cached schemas regardless of age.
package schemacache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tasak/tasak/internal/config"
)

// Property describes one parameter of a tool.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// InputSchema is a tool's declared parameter schema.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDef is one entry of a tool catalog.
type ToolDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Entry is the persisted catalog of one application.
type Entry struct {
	Tools       []ToolDef `json:"tools"`
	LastUpdated time.Time `json:"last_updated"`
}

// Cache stores one schema file per application.
type Cache struct {
	dir string
	now func() time.Time
}

// New returns a cache at the default per-user location
// (~/.tasak/schemas).
func New() (*Cache, error) {
	dir, err := config.GlobalDir()
	if err != nil {
		return nil, err
	}
	return NewAt(filepath.Join(dir, "schemas")), nil
}

// NewAt returns a cache rooted at an explicit directory. Used by tests.
func NewAt(dir string) *Cache {
	return &Cache{dir: dir, now: time.Now}
}

// SetClock overrides the time source. Used by tests.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

func (c *Cache) path(app string) string {
	return filepath.Join(c.dir, app+".json")
}

// Load returns the cached entry for app. The second return is false when
// no entry exists.
func (c *Cache) Load(app string) (Entry, bool, error) {
	data, err := os.ReadFile(c.path(app))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading schema cache: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("parsing schema cache %s: %w", c.path(app), err)
	}
	return entry, true, nil
}

// Save overwrites the entry for app with the current timestamp and
// returns the storage location.
func (c *Cache) Save(app string, tools []ToolDef) (string, error) {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return "", fmt.Errorf("creating schema cache directory: %w", err)
	}
	entry := Entry{Tools: tools, LastUpdated: c.now()}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding schema cache: %w", err)
	}
	path := c.path(app)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing schema cache: %w", err)
	}
	return path, nil
}

// AgeDays returns the whole-day (floor) age of app's entry. The second
// return is false when no entry exists.
func (c *Cache) AgeDays(app string) (int, bool, error) {
	entry, ok, err := c.Load(app)
	if err != nil || !ok {
		return 0, false, err
	}
	age := c.now().Sub(entry.LastUpdated)
	if age < 0 {
		age = 0
	}
	return int(age.Hours() / 24), true, nil
}

// FreshWithin reports whether app's entry exists and was updated within
// ttl. Used by dynamic mode's transport-avoidance window.
func (c *Cache) FreshWithin(app string, ttl time.Duration) (Entry, bool, error) {
	entry, ok, err := c.Load(app)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if c.now().Sub(entry.LastUpdated) >= ttl {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Exists reports whether app has a cached entry.
func (c *Cache) Exists(app string) bool {
	info, err := os.Stat(c.path(app))
	return err == nil && !info.IsDir()
}

// Delete removes app's entry, reporting whether one existed.
func (c *Cache) Delete(app string) (bool, error) {
	err := os.Remove(c.path(app))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting schema cache: %w", err)
	}
	return true, nil
}
