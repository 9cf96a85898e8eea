package cli

import (
	"fmt"
	"os"

	configfile "github.com/thingsync/thingsync/internal/adapters/driven/config/file"
	"github.com/thingsync/thingsync/internal/adapters/driven/lock"
	storagefile "github.com/thingsync/thingsync/internal/adapters/driven/storage/file"
	"github.com/thingsync/thingsync/internal/connectors/notion"
	"github.com/thingsync/thingsync/internal/connectors/things"
	"github.com/thingsync/thingsync/internal/core/ports/driven"
	"github.com/thingsync/thingsync/internal/core/ports/driving"
	"github.com/thingsync/thingsync/internal/core/services"
)

// pipeline is a fully wired sync stack plus the bits of context commands
// need around it.
type pipeline struct {
	runner driving.SyncRunner

	// watchPath is the Things database file, for the watch command.
	watchPath string

	close func()
}

// newPipeline builds the sync pipeline from configuration. Tests swap it
// for a factory returning mock runners.
var newPipeline = buildPipeline

func buildPipeline(cfgPath string) (*pipeline, error) {
	cfg, err := configfile.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Sync.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", cfg.Sync.DataDir, err)
	}

	source, err := things.NewAdapter(cfg.Things.DatabasePath)
	if err != nil {
		return nil, err
	}

	var legacySource driven.SourceAdapter
	if cfg.Things.ExportPath != "" {
		legacySource, err = things.NewExportAdapter(cfg.Things.ExportPath)
		if err != nil {
			source.Close()
			return nil, err
		}
	}

	target := notion.NewAdapter(
		cfg.Notion.Token,
		cfg.Notion.TasksDatabaseID,
		cfg.Notion.ProjectsDatabaseID,
	)

	store, err := storagefile.NewFingerprintStore(cfg.FingerprintPath())
	if err != nil {
		source.Close()
		return nil, err
	}

	passLock, err := lock.NewFileLock(cfg.LockPath(), cfg.LockMaxAge())
	if err != nil {
		source.Close()
		return nil, err
	}

	driver := services.NewSyncDriver(
		source, legacySource, target, store, passLock, cfg.CallTimeout(),
	)

	return &pipeline{
		runner:    driver,
		watchPath: source.Path(),
		close: func() {
			source.Close()
			target.Close()
			if legacySource != nil {
				legacySource.Close()
			}
		},
	}, nil
}
