package credstore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewAt(filepath.Join(t.TempDir(), "auth.json"))
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Load("jira")
	require.NoError(t, err, "a missing file is absence, not an error")
	assert.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := Entry{
		AccessToken:  "at-12345",
		RefreshToken: "rt-67890",
		ExpiresAt:    1900000000,
	}
	require.NoError(t, s.Save("jira", want))

	got, ok, err := s.Load("jira")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSavePreservesOtherApps(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("jira", Entry{AccessToken: "a"}))
	require.NoError(t, s.Save("github", Entry{AccessToken: "b"}))
	require.NoError(t, s.Save("jira", Entry{AccessToken: "a2"}))

	jira, ok, err := s.Load("jira")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a2", jira.AccessToken)

	github, ok, err := s.Load("github")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", github.AccessToken)
}

func TestFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	s := newTestStore(t)
	require.NoError(t, s.Save("jira", Entry{AccessToken: "a"}))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("jira", Entry{AccessToken: "a"}))

	removed, err := s.Clear("jira")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err := s.Load("jira")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err = s.Clear("jira")
	require.NoError(t, err)
	assert.False(t, removed, "clearing an absent entry reports false")
}

func TestExpired(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	tests := []struct {
		name      string
		expiresAt int64
		expired   bool
	}{
		{"59s left is inside the buffer", now.Unix() + 59, true},
		{"61s left is outside the buffer", now.Unix() + 61, false},
		{"long expired", now.Unix() - 3600, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expired, e.Expired(now, 60*time.Second))
		})
	}
}
