package cmd

import (
	"fmt"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

const updateRepo = "tasak/tasak"

// newSelfUpdateCmd builds `tasak selfupdate`, which replaces the running
// binary with the latest GitHub release.
func newSelfUpdateCmd() *cobra.Command {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "selfupdate",
		Short: "Update tasak to the latest released version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := adminLogger()

			latest, found, err := selfupdate.DetectLatest(cmd.Context(), selfupdate.ParseSlug(updateRepo))
			if err != nil {
				return fmt.Errorf("checking for updates: %w", err)
			}
			if !found {
				return fmt.Errorf("no release found for %s", updateRepo)
			}

			if latest.LessOrEqual(version) {
				logger.Info("Current version %s is up to date.", version)
				return nil
			}

			logger.Info("Found version %s (current: %s)", latest.Version(), version)
			if checkOnly {
				return nil
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locating executable: %w", err)
			}
			if err := selfupdate.UpdateTo(cmd.Context(), latest.AssetURL, latest.AssetName, exe); err != nil {
				return fmt.Errorf("updating binary: %w", err)
			}

			logger.Success("Updated to version %s", latest.Version())
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Check for a newer version without installing it")
	return cmd
}
