package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasak/tasak/internal/apperr"
	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/credstore"
	"github.com/tasak/tasak/internal/logging"
	"github.com/tasak/tasak/internal/mcpapp"
	"github.com/tasak/tasak/internal/oauth"
	"github.com/tasak/tasak/internal/schemacache"
)

// newAdminCmd groups the housekeeping commands: credentials, schema
// cache, and configuration inspection.
func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage tasak configuration, credentials, and caches",
	}
	cmd.AddCommand(newAdminListCmd())
	cmd.AddCommand(newAdminInfoCmd())
	cmd.AddCommand(newAdminAuthCmd())
	cmd.AddCommand(newAdminRefreshCmd())
	cmd.AddCommand(newAdminClearCmd())
	return cmd
}

func adminLogger() *logging.Logger {
	return logging.NewLogger(verbose, !noColor)
}

func newAdminListCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enabled applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			names := cfg.EnabledNames()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No applications enabled.")
				return nil
			}
			for _, name := range names {
				app, err := cfg.App(name)
				if err != nil {
					return err
				}
				if long {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s type=%-10s mode=%-8s %s\n",
						name, app.Type, app.Mode, app.DisplayName)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "v", false, "Show type, mode, and display name")
	return cmd
}

func newAdminInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <app>",
		Short: "Show one application's configuration and cache state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			app, err := cfg.App(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:         %s\n", app.Key)
			fmt.Fprintf(out, "Display name: %s\n", app.DisplayName)
			fmt.Fprintf(out, "Type:         %s\n", app.Type)
			fmt.Fprintf(out, "Mode:         %s\n", app.Mode)
			if len(app.Command) > 0 {
				fmt.Fprintf(out, "Command:      %s\n", strings.Join(app.Command, " "))
			}
			if app.ServerURL != "" {
				fmt.Fprintf(out, "Server URL:   %s\n", app.ServerURL)
			}
			if app.Description != "" {
				fmt.Fprintf(out, "Description:  %s\n", app.Description)
			}
			fmt.Fprintf(out, "Requires auth: %v\n", app.RequiresAuth())

			cache, err := schemacache.New()
			if err != nil {
				return err
			}
			if days, ok, err := cache.AgeDays(app.Key); err != nil {
				return err
			} else if ok {
				fmt.Fprintf(out, "Schema cache: %d day(s) old\n", days)
			} else {
				fmt.Fprintln(out, "Schema cache: none")
			}

			store, err := credstore.New()
			if err != nil {
				return err
			}
			entry, ok, err := store.Load(app.Key)
			if err != nil {
				return err
			}
			switch {
			case !ok:
				fmt.Fprintln(out, "Credentials:  none")
			case entry.Expired(time.Now(), 0):
				fmt.Fprintln(out, "Credentials:  expired")
			default:
				fmt.Fprintf(out, "Credentials:  valid until %s\n",
					time.Unix(entry.ExpiresAt, 0).Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newAdminAuthCmd() *cobra.Command {
	var check, clear, refresh bool
	cmd := &cobra.Command{
		Use:   "auth <app>",
		Short: "Authenticate an application via OAuth",
		Long: `Runs the browser-based OAuth authorization flow for an application
and stores the resulting tokens in ~/.tasak/auth.json.

With --check, reports credential status without any network calls.
With --refresh, exchanges the stored refresh token for a new access token.
With --clear, removes the stored credentials.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			app, err := cfg.App(args[0])
			if err != nil {
				return err
			}

			logger := adminLogger()
			store, err := credstore.New()
			if err != nil {
				return err
			}

			switch {
			case check:
				return reportAuthStatus(cmd, store, app.Key)
			case clear:
				removed, err := store.Clear(app.Key)
				if err != nil {
					return err
				}
				if removed {
					logger.Success("Removed credentials for %s", app.Key)
				} else {
					logger.Info("No credentials stored for %s", app.Key)
				}
				return nil
			case refresh:
				entry, ok, err := store.Load(app.Key)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.Newf(apperr.NotAuthenticated,
						"no credentials stored for %q", app.Key).
						WithHint("run: tasak admin auth %s", app.Key)
				}
				manager := oauth.NewManager(store, logger)
				if _, err := manager.Refresh(cmd.Context(), app, entry); err != nil {
					return err
				}
				logger.Success("Refreshed credentials for %s", app.Key)
				return nil
			default:
				manager := oauth.NewManager(store, logger)
				return manager.Authorize(cmd.Context(), app)
			}
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Report credential status without authenticating")
	cmd.Flags().BoolVar(&clear, "clear", false, "Remove stored credentials")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refresh the access token using the stored refresh token")
	cmd.MarkFlagsMutuallyExclusive("check", "clear", "refresh")
	return cmd
}

func reportAuthStatus(cmd *cobra.Command, store *credstore.Store, appKey string) error {
	entry, ok, err := store.Load(appKey)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch {
	case !ok:
		fmt.Fprintf(out, "%s: not authenticated\n", appKey)
	case entry.Expired(time.Now(), 0):
		fmt.Fprintf(out, "%s: token expired (refresh token %s)\n", appKey,
			presence(entry.RefreshToken))
	default:
		fmt.Fprintf(out, "%s: authenticated, expires %s\n", appKey,
			time.Unix(entry.ExpiresAt, 0).Format(time.RFC3339))
	}
	return nil
}

func presence(s string) string {
	if s == "" {
		return "absent"
	}
	return "present"
}

func newAdminRefreshCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "refresh [app]",
		Short: "Refetch tool schemas from MCP servers",
		Long: `Connects to an application's MCP server, fetches the live tool
catalog, and overwrites the cached schema. With --all, refreshes every
enabled MCP application.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name an application or pass --all")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := adminLogger()

			var apps []*config.App
			if all {
				for _, name := range cfg.EnabledNames() {
					app, err := cfg.App(name)
					if err != nil {
						return err
					}
					if app.Type == config.TypeMCP || app.Type == config.TypeMCPRemote {
						apps = append(apps, app)
					}
				}
			} else {
				app, err := cfg.App(args[0])
				if err != nil {
					return err
				}
				apps = append(apps, app)
			}

			cache, err := schemacache.New()
			if err != nil {
				return err
			}
			store, err := credstore.New()
			if err != nil {
				return err
			}
			tokens := oauth.NewManager(store, logger)

			var failed int
			for _, app := range apps {
				if err := refreshSchema(cmd.Context(), app, cache, tokens, logger); err != nil {
					logger.Error("%s: %v", app.Key, err)
					failed++
					continue
				}
				logger.Success("Refreshed schema for %s", app.Key)
			}
			if failed > 0 {
				return fmt.Errorf("%d application(s) failed to refresh", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Refresh every enabled MCP application")
	return cmd
}

// refreshSchema dials the app, lists its tools, and persists them.
func refreshSchema(ctx context.Context, app *config.App, cache *schemacache.Cache, tokens *oauth.Manager, logger *logging.Logger) error {
	if app.Type != config.TypeMCP && app.Type != config.TypeMCPRemote {
		return apperr.Newf(apperr.ConfigMissing,
			"application %q is not an MCP application", app.Key)
	}

	var token string
	if app.RequiresAuth() {
		var err error
		token, err = tokens.AccessToken(ctx, app)
		if err != nil {
			return err
		}
	}

	session, err := mcpapp.Dial(ctx, app, token, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	tools, err := session.ListTools(ctx)
	if err != nil {
		return err
	}
	if len(tools) == 0 {
		return apperr.Newf(apperr.EmptyCatalog,
			"server for %q exposes no tools", app.Key)
	}
	_, err = cache.Save(app.Key, tools)
	return err
}

func newAdminClearCmd() *cobra.Command {
	var clearCache, clearAuth, clearAll bool
	cmd := &cobra.Command{
		Use:   "clear <app>",
		Short: "Remove cached schemas or stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearCache && !clearAuth && !clearAll {
				return fmt.Errorf("pass --cache, --auth, or --all")
			}
			logger := adminLogger()
			appKey := args[0]

			if clearCache || clearAll {
				cache, err := schemacache.New()
				if err != nil {
					return err
				}
				removed, err := cache.Delete(appKey)
				if err != nil {
					return err
				}
				if removed {
					logger.Success("Cleared cached schema for %s", appKey)
				} else {
					logger.Info("No cached schema for %s", appKey)
				}
			}

			if clearAuth || clearAll {
				store, err := credstore.New()
				if err != nil {
					return err
				}
				removed, err := store.Clear(appKey)
				if err != nil {
					return err
				}
				if removed {
					logger.Success("Removed credentials for %s", appKey)
				} else {
					logger.Info("No credentials stored for %s", appKey)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearCache, "cache", false, "Clear the cached tool schema")
	cmd.Flags().BoolVar(&clearAuth, "auth", false, "Remove stored credentials")
	cmd.Flags().BoolVar(&clearAll, "all", false, "Clear both schema cache and credentials")
	return cmd
}
