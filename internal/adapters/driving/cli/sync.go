package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thingsync/thingsync/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync pass",
	Long: `Runs one reconciliation pass: reads tasks from Things, compares them
against the fingerprint cache, and applies creates, updates and deletions
to Notion. Unchanged tasks are skipped without touching the API.

A pass that partially fails (some tasks errored, others applied) still
exits 0; re-running retries only what failed.`,
	RunE: runSync,
}

var (
	forceFlag      bool
	clearCacheFlag bool
	legacyFlag     bool
)

func init() {
	syncCmd.Flags().BoolVar(&forceFlag, "force", false,
		"re-check every task against live Notion content, repairing drift")
	syncCmd.Flags().BoolVar(&clearCacheFlag, "clear-cache", false,
		"drop the fingerprint cache and rebuild it from Notion")
	syncCmd.Flags().BoolVar(&legacyFlag, "legacy", false,
		"read tasks from the configured JSON export instead of the Things database")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	mode, err := selectMode()
	if err != nil {
		return err
	}

	p, err := newPipeline(configPath)
	if err != nil {
		return err
	}
	defer p.close()

	summary, err := p.runner.RunOnce(cmd.Context(), mode)
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			cmd.Println("Another sync pass is already running; nothing to do.")
			return nil
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	printSummary(cmd, summary)
	return nil
}

// selectMode maps the mode flags to a pass mode. The flags are mutually
// exclusive.
func selectMode() (domain.Mode, error) {
	set := 0
	mode := domain.ModeNormal
	if forceFlag {
		set++
		mode = domain.ModeForce
	}
	if clearCacheFlag {
		set++
		mode = domain.ModeClearCache
	}
	if legacyFlag {
		set++
		mode = domain.ModeLegacy
	}
	if set > 1 {
		return "", fmt.Errorf("%w: --force, --clear-cache and --legacy are mutually exclusive",
			domain.ErrInvalidInput)
	}
	return mode, nil
}

func printSummary(cmd *cobra.Command, s domain.PassSummary) {
	if s.StoreRecovered {
		cmd.Println("Fingerprint cache was unreadable and has been rebuilt.")
	}
	cmd.Printf("Synced %d tasks: %d created, %d updated, %d deleted, %d unchanged.\n",
		s.Total(), s.Created, s.Updated, s.Deleted, s.Skipped)
	if s.Conflicts > 0 {
		cmd.Printf("%d Notion-side edits were overwritten by Things.\n", s.Conflicts)
	}
	if s.Failed > 0 {
		cmd.Printf("%d tasks failed; run again to retry them.\n", s.Failed)
	}
}
