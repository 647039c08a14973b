package cmd

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tasak/tasak/internal/logging"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func TestCreateCommandWritesWrapperAndConfig(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("HOME", t.TempDir())
	logger := logging.NewLoggerWithWriter(false, false, os.Stderr)

	require.NoError(t, createCommand("mytools", false, false, logger))

	wrapper, err := os.ReadFile(filepath.Join(dir, "mytools"))
	require.NoError(t, err)
	assert.Contains(t, string(wrapper), "TASAK_CONFIG_NAME=\"mytools.yaml\"")
	assert.Contains(t, string(wrapper), `exec tasak "$@"`)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, "mytools"))
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&0o100, "wrapper must be executable")
	}

	data, err := os.ReadFile(filepath.Join(dir, "mytools.yaml"))
	require.NoError(t, err)
	var cfg map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Contains(t, cfg, "apps_config")
	assert.Contains(t, cfg, "hello")
}

func TestCreateCommandRejectsBadNames(t *testing.T) {
	logger := logging.NewLoggerWithWriter(false, false, os.Stderr)
	err := createCommand("bad name!", false, false, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid command name")
}

func TestCreateCommandRefusesOverwrite(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("HOME", t.TempDir())
	logger := logging.NewLoggerWithWriter(false, false, os.Stderr)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "mytools"), []byte("#!/bin/sh\n"), 0o755))

	err := createCommand("mytools", false, false, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	require.NoError(t, createCommand("mytools", false, true, logger))
}

func TestGlobalFlags(t *testing.T) {
	t.Cleanup(func() { verbose, noColor = false, false })

	rest, help := globalFlags([]string{"--verbose", "--no-color", "jira", "--verbose"})
	assert.True(t, verbose)
	assert.True(t, noColor)
	assert.False(t, help)
	assert.Equal(t, []string{"jira", "--verbose"}, rest, "flags after the app name pass through")

	rest, help = globalFlags([]string{"--help"})
	assert.True(t, help)
	assert.Empty(t, rest)
}
