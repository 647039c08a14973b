package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/logging"
)

var commandNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// newCreateCommandCmd builds `tasak create-command <name>`: a wrapper
// script that runs tasak against <name>.yaml instead of tasak.yaml, so
// one binary can serve several independently configured command suites.
func newCreateCommandCmd() *cobra.Command {
	var installGlobal, force bool
	cmd := &cobra.Command{
		Use:   "create-command <name>",
		Short: "Create a custom command with its own config file",
		Long: `Creates an executable wrapper script named <name> that invokes tasak
with TASAK_CONFIG_NAME=<name>.yaml, plus starter config files: a local
<name>.yaml with example apps and an empty global one in ~/.tasak/.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return createCommand(args[0], installGlobal, force, adminLogger())
		},
	}
	cmd.Flags().BoolVar(&installGlobal, "global", false, "Install the wrapper into ~/.local/bin instead of the current directory")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing wrapper script")
	return cmd
}

func createCommand(name string, installGlobal, force bool, logger *logging.Logger) error {
	if !commandNameRe.MatchString(name) {
		return fmt.Errorf("invalid command name %q: only letters, numbers, hyphens, and underscores are allowed", name)
	}

	installDir, err := installDirFor(installGlobal)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return fmt.Errorf("creating install directory: %w", err)
	}

	wrapperPath := filepath.Join(installDir, name)
	if _, err := os.Stat(wrapperPath); err == nil && !force {
		return fmt.Errorf("command %q already exists at %s; use --force to overwrite", name, wrapperPath)
	}

	if err := writeWrapper(wrapperPath, name); err != nil {
		return err
	}
	logger.Success("Created custom command: %s", wrapperPath)

	created, err := writeExampleConfigs(name)
	if err != nil {
		return err
	}
	for _, path := range created {
		logger.Info("Config file created: %s", path)
	}

	logger.Info("Usage: %s            # list available apps", name)
	logger.Info("       %s hello      # run the hello app", name)
	if installGlobal {
		logger.Info("Make sure ~/.local/bin is in your PATH.")
	}
	return nil
}

func installDirFor(installGlobal bool) (string, error) {
	if !installGlobal {
		return os.Getwd()
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "bin"), nil
}

func writeWrapper(path, name string) error {
	script := fmt.Sprintf(`#!/bin/sh
# Custom tasak command: %s. Uses %s.yaml instead of tasak.yaml.
TASAK_CONFIG_NAME=%q exec tasak "$@"
`, name, name, name+".yaml")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return fmt.Errorf("writing wrapper script: %w", err)
	}
	return nil
}

// writeExampleConfigs creates a starter local config and an empty global
// one, skipping any file that already exists.
func writeExampleConfigs(name string) ([]string, error) {
	var created []string

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	localPath := filepath.Join(cwd, name+".yaml")
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		local := map[string]interface{}{
			"header": name + " command suite",
			"apps_config": map[string]interface{}{
				"enabled_apps": []string{"hello"},
			},
			"hello": map[string]interface{}{
				"name": "Hello World",
				"type": "cmd",
				"meta": map[string]interface{}{
					"command": fmt.Sprintf("echo 'Hello from %s!'", name),
				},
			},
		}
		if err := writeYAML(localPath, local); err != nil {
			return nil, err
		}
		created = append(created, localPath)
	}

	globalDir, err := config.GlobalDir()
	if err != nil {
		return nil, err
	}
	globalPath := filepath.Join(globalDir, name+".yaml")
	if _, err := os.Stat(globalPath); os.IsNotExist(err) {
		if err := os.MkdirAll(globalDir, 0o700); err != nil {
			return nil, err
		}
		global := map[string]interface{}{
			"header": "Global " + name + " configuration",
			"apps_config": map[string]interface{}{
				"enabled_apps": []string{},
			},
		}
		if err := writeYAML(globalPath, global); err != nil {
			return nil, err
		}
		created = append(created, globalPath)
	}

	return created, nil
}

func writeYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
