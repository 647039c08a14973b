// Package config loads and merges tasak's layered YAML configuration.
//
// Configuration is assembled from the global file (~/.tasak/tasak.yaml) and
// any tasak.yaml or .tasak/tasak.yaml found while walking from the
// filesystem root down to the working directory. Later files override
// earlier ones per top-level key. The merged result is immutable for the
// duration of the process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tasak/tasak/internal/apperr"
)

// DefaultConfigName is the configuration file basename. Custom commands
// generated by `tasak create-command` override it via TASAK_CONFIG_NAME.
const DefaultConfigName = "tasak.yaml"

// Type identifies the kind of application.
type Type string

const (
	TypeCmd       Type = "cmd"
	TypeMCP       Type = "mcp"
	TypeMCPRemote Type = "mcp-remote"
)

// Mode selects how a runner resolves tool definitions. It is parsed once
// at load time; runners branch on the value, never on the raw string.
type Mode int

const (
	// ModeDynamic fetches the catalog live, with a short-TTL cache.
	ModeDynamic Mode = iota
	// ModeCurated prefers the persisted schema regardless of age.
	ModeCurated
	// ModeProxy bypasses discovery and passes arguments through verbatim.
	ModeProxy
)

func (m Mode) String() string {
	switch m {
	case ModeCurated:
		return "curated"
	case ModeProxy:
		return "proxy"
	default:
		return "dynamic"
	}
}

func parseMode(s string, dflt Mode) (Mode, error) {
	switch s {
	case "":
		return dflt, nil
	case "dynamic":
		return ModeDynamic, nil
	case "curated":
		return ModeCurated, nil
	case "proxy":
		return ModeProxy, nil
	default:
		return dflt, fmt.Errorf("unknown mode %q", s)
	}
}

// OAuthProvider overrides the token endpoint settings for one app.
type OAuthProvider struct {
	ClientID string   `yaml:"client_id"`
	AuthURL  string   `yaml:"auth_url"`
	TokenURL string   `yaml:"token_url"`
	Scopes   []string `yaml:"scopes"`
}

// CmdParam declares one curated-mode parameter of a cmd app.
type CmdParam struct {
	Name     string `yaml:"name"`
	Help     string `yaml:"help"`
	Required bool   `yaml:"required"`
	// MapsTo is the flag prepended to the value on the built command
	// line. Empty means the value is appended as a positional argument.
	MapsTo string `yaml:"maps_to"`
}

// App is the resolved configuration of one application.
type App struct {
	// Key is the name the app is invoked by.
	Key string
	// DisplayName is the human-readable name from the config.
	DisplayName string
	Type        Type
	Mode        Mode

	// Command, Args and Env configure local subprocesses (cmd and mcp
	// apps).
	Command []string
	Env     map[string]string

	// ServerURL is the remote endpoint of mcp-remote apps.
	ServerURL string

	// Description and Params apply to curated cmd apps.
	Description string
	Params      []CmdParam

	// Auth overrides the default OAuth provider.
	Auth *OAuthProvider

	requiresAuth *bool
}

// RequiresAuth reports whether invocations must carry a bearer token.
// Unset defaults to true for MCP apps so configs that never mention
// requires_auth keep authenticating.
func (a *App) RequiresAuth() bool {
	if a.requiresAuth != nil {
		return *a.requiresAuth
	}
	return a.Type == TypeMCP || a.Type == TypeMCPRemote
}

// SetRequiresAuth overrides the auth requirement, normally decoded from
// the requires_auth key.
func (a *App) SetRequiresAuth(v bool) {
	a.requiresAuth = &v
}

// rawApp is the YAML shape of one app entry.
type rawApp struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	RequiresAuth *bool    `yaml:"requires_auth"`
	Meta         struct {
		Command     yaml.Node         `yaml:"command"`
		Args        []string          `yaml:"args"`
		Env         map[string]string `yaml:"env"`
		Mode        string            `yaml:"mode"`
		ServerURL   string            `yaml:"server_url"`
		Description string            `yaml:"description"`
		Params      []CmdParam        `yaml:"params"`
		Auth        *OAuthProvider    `yaml:"auth"`
	} `yaml:"meta"`
}

// Config is the merged, immutable configuration for one process run.
type Config struct {
	Header      string
	EnabledApps []string
	apps        map[string]*App
	// broken holds decode errors per app key, surfaced only when the
	// app is actually requested so one bad entry does not take down
	// every command.
	broken map[string]error
}

// App resolves an application by name.
func (c *Config) App(name string) (*App, error) {
	if app, ok := c.apps[name]; ok {
		return app, nil
	}
	if err, ok := c.broken[name]; ok {
		return nil, err
	}
	return nil, apperr.Newf(apperr.ConfigMissing,
		"application %q not found in configuration", name).
		WithHint("tasak admin list")
}

// AppNames returns all configured application names, sorted.
func (c *Config) AppNames() []string {
	names := make([]string, 0, len(c.apps))
	for name := range c.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnabledNames returns the apps_config.enabled_apps entries that resolve
// to a configured application, sorted. Listing and bulk operations work
// from this set; direct invocation accepts any configured app.
func (c *Config) EnabledNames() []string {
	var names []string
	for _, name := range c.EnabledApps {
		if _, ok := c.apps[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// configName returns the active config file basename.
func configName() string {
	if name := os.Getenv("TASAK_CONFIG_NAME"); name != "" {
		return name
	}
	return DefaultConfigName
}

// GlobalDir returns the per-user tasak directory (~/.tasak).
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".tasak"), nil
}

// layerPaths returns every config file that participates in the merge,
// lowest precedence first.
func layerPaths() ([]string, error) {
	var paths []string

	if dir, err := GlobalDir(); err == nil {
		global := filepath.Join(dir, configName())
		if fileExists(global) {
			paths = append(paths, global)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	// Collect ancestor-local configs, then reverse so the file closest
	// to the working directory wins.
	var locals []string
	dir := cwd
	for {
		dotted := filepath.Join(dir, ".tasak", configName())
		plain := filepath.Join(dir, configName())
		if fileExists(dotted) {
			locals = append(locals, dotted)
		}
		if fileExists(plain) {
			locals = append(locals, plain)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	for i := len(locals) - 1; i >= 0; i-- {
		paths = append(paths, locals[i])
	}

	return paths, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads and merges every configuration layer.
func Load() (*Config, error) {
	paths, err := layerPaths()
	if err != nil {
		return nil, err
	}
	return loadFrom(paths)
}

// loadFrom merges the given files, lowest precedence first.
func loadFrom(paths []string) (*Config, error) {
	merged := map[string]yaml.Node{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var layer map[string]yaml.Node
		if err := yaml.Unmarshal(data, &layer); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		for key, node := range layer {
			merged[key] = node
		}
	}
	return buildConfig(merged)
}

func buildConfig(merged map[string]yaml.Node) (*Config, error) {
	cfg := &Config{apps: map[string]*App{}, broken: map[string]error{}}

	for key, node := range merged {
		switch key {
		case "header":
			if err := node.Decode(&cfg.Header); err != nil {
				return nil, fmt.Errorf("decoding header: %w", err)
			}
		case "apps_config":
			var ac struct {
				EnabledApps []string `yaml:"enabled_apps"`
			}
			if err := node.Decode(&ac); err != nil {
				return nil, fmt.Errorf("decoding apps_config: %w", err)
			}
			cfg.EnabledApps = ac.EnabledApps
		default:
			app, err := decodeApp(key, node)
			if err != nil {
				cfg.broken[key] = err
				continue
			}
			cfg.apps[key] = app
		}
	}

	return cfg, nil
}

func decodeApp(key string, node yaml.Node) (*App, error) {
	var raw rawApp
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding app %q: %w", key, err)
	}

	app := &App{
		Key:          key,
		DisplayName:  raw.Name,
		Type:         Type(raw.Type),
		Env:          raw.Meta.Env,
		ServerURL:    raw.Meta.ServerURL,
		Description:  raw.Meta.Description,
		Params:       raw.Meta.Params,
		Auth:         raw.Meta.Auth,
		requiresAuth: raw.RequiresAuth,
	}

	switch app.Type {
	case TypeCmd, TypeMCP, TypeMCPRemote:
	case "":
		return nil, apperr.Newf(apperr.ConfigMissing,
			"application %q has no type", key)
	default:
		return nil, apperr.Newf(apperr.ConfigMissing,
			"application %q has unknown type %q", key, raw.Type)
	}

	// Command accepts either a string (split on whitespace by the
	// runner) or a list.
	if raw.Meta.Command.Kind != 0 {
		cmd, err := decodeCommand(&raw.Meta.Command)
		if err != nil {
			return nil, fmt.Errorf("decoding command of app %q: %w", key, err)
		}
		app.Command = append(cmd, raw.Meta.Args...)
	}

	dfltMode := ModeDynamic
	if app.Type == TypeCmd {
		dfltMode = ModeProxy
	}
	mode, err := parseMode(raw.Meta.Mode, dfltMode)
	if err != nil {
		return nil, apperr.Newf(apperr.ConfigMissing,
			"application %q: %v", key, err)
	}
	app.Mode = mode

	return app, nil
}

func decodeCommand(node *yaml.Node) ([]string, error) {
	var list []string
	if err := node.Decode(&list); err == nil {
		return list, nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return nil, fmt.Errorf("command must be a string or a list of strings")
	}
	return strings.Fields(s), nil
}
