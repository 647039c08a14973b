package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tasak/tasak/internal/apperr"
	"github.com/tasak/tasak/internal/cmdapp"
	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/credstore"
	"github.com/tasak/tasak/internal/logging"
	"github.com/tasak/tasak/internal/mcpapp"
	"github.com/tasak/tasak/internal/oauth"
	"github.com/tasak/tasak/internal/schemacache"
)

var (
	version string
	verbose bool
	noColor bool
)

// rootCmd dispatches `tasak <app> [args...]`. The app surface is not a
// static subcommand tree: apps come from the layered YAML config and
// their flags from discovered tool schemas, so the root parses nothing
// beyond its own name.
var rootCmd = &cobra.Command{
	Use:   "tasak [app] [args...]",
	Short: "Run configured applications from the command line",
	Long: `tasak invokes heterogeneous applications behind one command-line
surface: plain commands, local MCP tool servers, and remote MCP servers
reached through mcp-remote.

Applications are declared in tasak.yaml files. The global file in
~/.tasak/ is read first, then every tasak.yaml from the filesystem root
down to the current directory, with closer files overriding.

Without arguments, tasak lists the enabled applications. With an
application name, the remaining arguments go to that application:
plain commands receive them verbatim (or mapped through their declared
params), MCP applications expose one subcommand per discovered tool.

Reserved flags, handled before any tool parsing:
  --auth          run the OAuth authorization flow for the app
  --clear-cache   drop the app's cached tool schema
  --interactive   keep one session open for multiple tool calls (-i)`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE:               runRoot,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	code := exitCodeFor(err)
	if code == 130 {
		// Interrupted runs end quietly, like a shell Ctrl-C.
		return code
	}
	var exitErr *cmdapp.ExitError
	if errors.As(err, &exitErr) {
		return code
	}

	logger := logging.NewLogger(verbose, !noColor)
	logger.Error("%v", err)
	if hint := apperr.HintOf(err); hint != "" {
		logger.Info("%s", hint)
	}
	return code
}

// exitCodeFor maps an error from any dispatch path to a process exit
// code. Interrupts surface either as ErrInterrupted from the session
// loop or as a wrapped context.Canceled from an aborted tool call.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, mcpapp.ErrInterrupted) || errors.Is(err, context.Canceled) {
		return 130
	}
	var exitErr *cmdapp.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return apperr.ExitCode(err)
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.AddCommand(newAdminCmd())
	rootCmd.AddCommand(newCreateCommandCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// setupSignalHandler cancels the context on interrupt signals.
func setupSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
}

// globalFlags strips leading --verbose/--no-color/--help so they work in
// front of the app name even with root flag parsing disabled.
func globalFlags(args []string) (rest []string, help bool) {
	for len(args) > 0 {
		switch args[0] {
		case "--verbose":
			verbose = true
		case "--no-color":
			noColor = true
		case "--help", "-h":
			help = true
		case "--version":
			fmt.Println("tasak " + version)
			os.Exit(0)
		default:
			return args, help
		}
		args = args[1:]
	}
	return args, help
}

func runRoot(cmd *cobra.Command, args []string) error {
	args, help := globalFlags(args)
	if help && len(args) == 0 {
		return cmd.Help()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	setupSignalHandler(cancel)

	logger := logging.NewLogger(verbose, !noColor)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		listApps(cfg)
		return nil
	}

	app, err := cfg.App(args[0])
	if err != nil {
		return err
	}
	argv := args[1:]
	if help {
		argv = append([]string{"--help"}, argv...)
	}

	return dispatch(ctx, app, argv, logger)
}

// listApps prints the enabled applications for a bare `tasak`.
func listApps(cfg *config.Config) {
	if cfg.Header != "" {
		fmt.Println(cfg.Header)
		fmt.Println()
	}
	names := cfg.EnabledNames()
	if len(names) == 0 {
		fmt.Println("No applications enabled. Add apps_config.enabled_apps to tasak.yaml.")
		return
	}
	fmt.Println("Available applications:")
	for _, name := range names {
		app, err := cfg.App(name)
		if err != nil {
			continue
		}
		fmt.Printf("  %-20s %s\n", name, app.DisplayName)
	}
	fmt.Println("\nRun 'tasak <app> --help' for an application's tools.")
}

// dispatch routes one invocation by application type and mode.
func dispatch(ctx context.Context, app *config.App, argv []string, logger *logging.Logger) error {
	switch app.Type {
	case config.TypeCmd:
		runner := cmdapp.NewRunner(logger, os.Stdout, os.Stderr, os.Stdin)
		return runner.Run(ctx, app, argv)

	case config.TypeMCP, config.TypeMCPRemote:
		store, err := credstore.New()
		if err != nil {
			return err
		}
		tokens := oauth.NewManager(store, logger)

		if app.Mode == config.ModeProxy {
			return runProxy(ctx, app, argv, tokens, logger)
		}

		cache, err := schemacache.New()
		if err != nil {
			return err
		}
		runner := mcpapp.NewRunner(cache, tokens, logger, os.Stdout, os.Stderr)
		return runner.Run(ctx, app, argv)

	default:
		return apperr.Newf(apperr.ConfigMissing,
			"application %q has unsupported type %q", app.Key, app.Type)
	}
}

// runProxy hands argv straight to the app's transport command.
func runProxy(ctx context.Context, app *config.App, argv []string, tokens *oauth.Manager, logger *logging.Logger) error {
	var token string
	if app.RequiresAuth() {
		var err error
		token, err = tokens.AccessToken(ctx, app)
		if err != nil {
			return err
		}
	}
	name, args, env, err := mcpapp.ProxyCommand(app, token)
	if err != nil {
		return err
	}
	runner := cmdapp.NewRunner(logger, os.Stdout, os.Stderr, os.Stdin)
	return runner.ExecRaw(ctx, name, append(args, argv...), env)
}
