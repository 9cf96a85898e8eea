package cli

import (
	"errors"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/logger"
)

// watchDebounce is how long after the last database write a pass starts.
// Things batches its SQLite writes, so firing on the first event would sync
// a half-saved edit.
var watchDebounce = 2 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the Things database and sync on every change",
	Long: `Watches the Things database file and runs a sync pass whenever it
changes, after a short settle delay. An initial pass runs immediately.
Stop with Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	p, err := newPipeline(configPath)
	if err != nil {
		return err
	}
	defer p.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: SQLite journals appear and the
	// database file itself can be replaced, which breaks a file watch.
	if err := watcher.Add(filepath.Dir(p.watchPath)); err != nil {
		return err
	}
	base := filepath.Base(p.watchPath)

	cmd.Printf("Watching %s; press Ctrl-C to stop.\n", p.watchPath)

	// Fires immediately for the initial pass, then on each settled change.
	pending := time.NewTimer(0)
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			cmd.Println("Stopping.")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// The database, its WAL and its journal all share the base name.
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			pending.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error: %v", err)

		case <-pending.C:
			summary, err := p.runner.RunOnce(ctx, domain.ModeNormal)
			switch {
			case errors.Is(err, domain.ErrSyncInProgress):
				cmd.Println("Another sync pass is running; will retry on the next change.")
			case err != nil:
				if ctx.Err() != nil {
					cmd.Println("Stopping.")
					return nil
				}
				logger.Error("sync pass failed: %v", err)
			default:
				printSummary(cmd, summary)
			}
		}
	}
}
