// Package file loads thingsync configuration from a TOML file in the
// user's config directory.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/thingsync/thingsync/internal/core/domain"
)

// Defaults applied when the config omits a value.
const (
	defaultCallTimeoutSeconds = 30
	defaultLockMaxAgeMinutes  = 10
)

// Config is the full user configuration.
type Config struct {
	Notion NotionConfig `toml:"notion"`
	Things ThingsConfig `toml:"things"`
	Sync   SyncConfig   `toml:"sync"`
}

// NotionConfig configures the target workspace.
type NotionConfig struct {
	// Token is the Notion integration token.
	Token string `toml:"token"`

	// TasksDatabaseID is the database synced tasks live in.
	TasksDatabaseID string `toml:"tasks_database_id"`

	// ProjectsDatabaseID is the database project relations point into.
	ProjectsDatabaseID string `toml:"projects_database_id"`
}

// ThingsConfig configures the source.
type ThingsConfig struct {
	// DatabasePath overrides the default Things database location.
	DatabasePath string `toml:"database_path"`

	// ExportPath is the JSON export file the legacy source adapter reads.
	ExportPath string `toml:"export_path"`
}

// SyncConfig tunes pass behaviour.
type SyncConfig struct {
	// DataDir holds the fingerprint store and lock file.
	// Defaults to ~/.thingsync/data.
	DataDir string `toml:"data_dir"`

	// CallTimeoutSeconds bounds each adapter call.
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`

	// LockMaxAgeMinutes is how old a pass lock may be before a new
	// invocation treats it as abandoned.
	LockMaxAgeMinutes int `toml:"lock_max_age_minutes"`
}

// DefaultPath returns the default config file location,
// ~/.thingsync/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".thingsync", "config.toml"), nil
}

// Load reads and validates the configuration at path. If path is empty the
// default location is used. Missing or unusable configuration is
// domain.ErrConfigInvalid: the operator must intervene before syncing.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no config file at %s", domain.ErrConfigInvalid, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConfigInvalid, path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrConfigInvalid, path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.CallTimeoutSeconds <= 0 {
		c.Sync.CallTimeoutSeconds = defaultCallTimeoutSeconds
	}
	if c.Sync.LockMaxAgeMinutes <= 0 {
		c.Sync.LockMaxAgeMinutes = defaultLockMaxAgeMinutes
	}
	if c.Sync.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Sync.DataDir = filepath.Join(home, ".thingsync", "data")
		}
	}
}

// Validate checks the credentials the sync cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.Notion.Token == "" {
		missing = append(missing, "notion.token")
	}
	if c.Notion.TasksDatabaseID == "" {
		missing = append(missing, "notion.tasks_database_id")
	}
	if c.Notion.ProjectsDatabaseID == "" {
		missing = append(missing, "notion.projects_database_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", domain.ErrConfigInvalid, missing)
	}
	return nil
}

// CallTimeout returns the per-adapter-call bound.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Sync.CallTimeoutSeconds) * time.Second
}

// LockMaxAge returns the stale-lock threshold.
func (c *Config) LockMaxAge() time.Duration {
	return time.Duration(c.Sync.LockMaxAgeMinutes) * time.Minute
}

// FingerprintPath returns the fingerprint store location.
func (c *Config) FingerprintPath() string {
	return filepath.Join(c.Sync.DataDir, "fingerprints.json")
}

// LockPath returns the pass lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Sync.DataDir, "sync.lock")
}
