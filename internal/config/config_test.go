package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFromSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasak.yaml")
	writeFile(t, path, `
header: "Test Suite"
apps_config:
  enabled_apps: [calc, jira]
calc:
  name: Calculator
  type: mcp
  requires_auth: false
  meta:
    command: ["python3", "calc_server.py"]
    mode: dynamic
jira:
  name: Jira
  type: mcp-remote
  meta:
    server_url: https://mcp.example.com/v1/sse
    mode: curated
deploy:
  name: Deploy
  type: cmd
  meta:
    command: "kubectl apply"
    mode: proxy
`)

	cfg, err := loadFrom([]string{path})
	require.NoError(t, err)

	assert.Equal(t, "Test Suite", cfg.Header)
	assert.Equal(t, []string{"calc", "jira"}, cfg.EnabledApps)

	calc, err := cfg.App("calc")
	require.NoError(t, err)
	assert.Equal(t, TypeMCP, calc.Type)
	assert.Equal(t, ModeDynamic, calc.Mode)
	assert.Equal(t, []string{"python3", "calc_server.py"}, calc.Command)
	assert.False(t, calc.RequiresAuth())

	jira, err := cfg.App("jira")
	require.NoError(t, err)
	assert.Equal(t, TypeMCPRemote, jira.Type)
	assert.Equal(t, ModeCurated, jira.Mode)
	assert.Equal(t, "https://mcp.example.com/v1/sse", jira.ServerURL)
	assert.True(t, jira.RequiresAuth(), "mcp-remote apps default to requiring auth")

	deploy, err := cfg.App("deploy")
	require.NoError(t, err)
	assert.Equal(t, ModeProxy, deploy.Mode)
	assert.Equal(t, []string{"kubectl", "apply"}, deploy.Command,
		"string commands are split on whitespace")
}

func TestLoadFromLayerOverride(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.yaml")
	local := filepath.Join(dir, "local.yaml")

	writeFile(t, global, `
header: Global
calc:
  name: Global Calc
  type: mcp
  meta:
    command: global-server
hello:
  name: Hello
  type: cmd
  meta:
    command: "echo hello"
`)
	writeFile(t, local, `
header: Local
calc:
  name: Local Calc
  type: mcp
  meta:
    command: local-server
`)

	cfg, err := loadFrom([]string{global, local})
	require.NoError(t, err)

	assert.Equal(t, "Local", cfg.Header, "later layers win per key")

	calc, err := cfg.App("calc")
	require.NoError(t, err)
	assert.Equal(t, "Local Calc", calc.DisplayName)
	assert.Equal(t, []string{"local-server"}, calc.Command)

	// Keys absent from the later layer survive from the earlier one.
	hello, err := cfg.App("hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", hello.DisplayName)
}

func TestAppMissing(t *testing.T) {
	cfg := &Config{apps: map[string]*App{}}
	_, err := cfg.App("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestDecodeAppErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		substr  string
	}{
		{
			name: "missing type",
			content: `
bad:
  name: Bad
  meta:
    command: "true"
`,
			substr: "no type",
		},
		{
			name: "unknown type",
			content: `
bad:
  type: warp
`,
			substr: "unknown type",
		},
		{
			name: "unknown mode",
			content: `
bad:
  type: mcp
  meta:
    mode: sideways
`,
			substr: "unknown mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			writeFile(t, path, tt.content)

			// A bad entry fails when requested, not at load time.
			cfg, err := loadFrom([]string{path})
			require.NoError(t, err)
			_, err = cfg.App("bad")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestStrayKeyDoesNotBreakLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasak.yaml")
	writeFile(t, path, `
defaults: &defaults
  region: eu-west-1
hello:
  name: Hello
  type: cmd
  meta:
    command: "echo hello"
`)

	cfg, err := loadFrom([]string{path})
	require.NoError(t, err)

	hello, err := cfg.App("hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", hello.DisplayName)

	_, err = cfg.App("defaults")
	require.Error(t, err, "the stray key only fails when invoked")
	assert.NotContains(t, cfg.AppNames(), "defaults")
}

func TestEnabledNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasak.yaml")
	writeFile(t, path, `
apps_config:
  enabled_apps: [world, hello, ghost]
hello:
  name: Hello
  type: cmd
  meta:
    command: "echo hello"
world:
  name: World
  type: cmd
  meta:
    command: "echo world"
hidden:
  name: Hidden
  type: cmd
  meta:
    command: "echo hidden"
`)

	cfg, err := loadFrom([]string{path})
	require.NoError(t, err)

	assert.Equal(t, []string{"hello", "world"}, cfg.EnabledNames(),
		"only configured apps from enabled_apps, sorted")
	assert.Contains(t, cfg.AppNames(), "hidden",
		"disabled apps stay resolvable by name")
}

func TestCuratedCmdParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasak.yaml")
	writeFile(t, path, `
deploy:
  type: cmd
  meta:
    command: ["deploy-tool"]
    mode: curated
    description: Deploy a service
    params:
      - name: "--env"
        help: Target environment
        required: true
        maps_to: "--environment"
      - name: "--service"
        help: Service name
`)

	cfg, err := loadFrom([]string{path})
	require.NoError(t, err)

	app, err := cfg.App("deploy")
	require.NoError(t, err)
	assert.Equal(t, ModeCurated, app.Mode)
	require.Len(t, app.Params, 2)
	assert.Equal(t, "--env", app.Params[0].Name)
	assert.True(t, app.Params[0].Required)
	assert.Equal(t, "--environment", app.Params[0].MapsTo)
	assert.False(t, app.Params[1].Required)
}

func TestConfigNameOverride(t *testing.T) {
	t.Setenv("TASAK_CONFIG_NAME", "mytool.yaml")
	assert.Equal(t, "mytool.yaml", configName())

	t.Setenv("TASAK_CONFIG_NAME", "")
	assert.Equal(t, DefaultConfigName, configName())
}
