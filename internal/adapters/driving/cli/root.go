// Package cli implements the thingsync command surface. Commands are
// package-level cobra vars registered in init, with the pipeline factory
// behind a swappable var so tests run against mock runners.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "thingsync",
	Short: "Sync Things 3 tasks into a Notion workspace",
	Long: `thingsync mirrors the tasks in your Things 3 database into a pair of
Notion databases (tasks and projects). Things is the source of truth:
edits, completions and deletions flow one way, and a fingerprint cache
keeps repeat runs cheap and idempotent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.thingsync/config.toml)")
}

// Execute runs the CLI and returns the process exit code: 0 for a
// completed pass (including partial failures and a refused lock), 1 for
// configuration or runtime errors, 2 when the fingerprint store is corrupt
// and could not be rebuilt.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	rootCmd.PrintErrln("Error:", err)
	if errors.Is(err, domain.ErrStoreCorrupt) {
		return 2
	}
	return 1
}
