// Package config provides configuration for the indexer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the indexer configuration.
type Config struct {
	// Schedule is the cron spec of incremental indexing runs.
	// Defaults to "@every 1s".
	Schedule string `yaml:"schedule"`

	// BatchSize bounds the tasks handled per queue per cycle.
	BatchSize int `yaml:"batch_size"`

	// PollTimeout bounds how long a cycle waits on an empty queue.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// CatchUpOnStart drains both queues up to the start time after init.
	CatchUpOnStart bool `yaml:"catch_up_on_start"`

	// DetailsPath is the YAML file of indexed event detail items.
	// Relative paths resolve against the config directory.
	DetailsPath string `yaml:"details_path"`

	// RebuildRate limits events staged per second during a full rebuild.
	// Zero means unlimited.
	RebuildRate float64 `yaml:"rebuild_rate"`

	Store    StoreConfig    `yaml:"store"`
	Metadata MetadataConfig `yaml:"metadata"`
}

// StoreConfig configures the on-disk search index.
type StoreConfig struct {
	// Path is the pebble directory. Relative paths resolve against the
	// data directory.
	Path           string `yaml:"path"`
	BlockCacheSize int64  `yaml:"block_cache_size"`
}

// MetadataConfig configures the index metadata store.
type MetadataConfig struct {
	// DSN is the PostgreSQL connection string. Empty keeps metadata in
	// memory, which forces a rebuild on every start.
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// DefaultConfig returns the default indexer configuration.
func DefaultConfig() Config {
	return Config{
		Schedule:    "@every 1s",
		BatchSize:   1000,
		PollTimeout: 250 * time.Millisecond,
		DetailsPath: "event_details.yml",
		Store: StoreConfig{
			Path:           "indexes",
			BlockCacheSize: 64 * 1024 * 1024,
		},
		Metadata: MetadataConfig{
			Table: "index_metadata",
		},
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Schedule == "" {
		c.Schedule = defaults.Schedule
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = defaults.PollTimeout
	}
	if c.DetailsPath == "" {
		c.DetailsPath = defaults.DetailsPath
	}
	if c.Store.Path == "" {
		c.Store.Path = defaults.Store.Path
	}
	if c.Store.BlockCacheSize == 0 {
		c.Store.BlockCacheSize = defaults.Store.BlockCacheSize
	}
	if c.Metadata.Table == "" {
		c.Metadata.Table = defaults.Metadata.Table
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("EVENTIDX_INDEXER_SCHEDULE"); val != "" {
		c.Schedule = val
	}
	if val := os.Getenv("EVENTIDX_INDEXER_BATCH_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.BatchSize = n
		}
	}
	if val := os.Getenv("EVENTIDX_INDEXER_STORE_PATH"); val != "" {
		c.Store.Path = val
	}
	if val := os.Getenv("EVENTIDX_METADATA_DSN"); val != "" {
		c.Metadata.DSN = val
	}
}

// ResolvePaths resolves relative paths using the given directories.
func (c *Config) ResolvePaths(configDir, dataDir string) {
	if c.DetailsPath != "" && !filepath.IsAbs(c.DetailsPath) {
		c.DetailsPath = filepath.Join(configDir, c.DetailsPath)
	}
	if c.Store.Path != "" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(dataDir, c.Store.Path)
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("indexer.schedule: %w", err)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("indexer.batch_size must be positive, got %d", c.BatchSize)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("indexer.poll_timeout must be positive, got %s", c.PollTimeout)
	}
	if c.RebuildRate < 0 {
		return fmt.Errorf("indexer.rebuild_rate cannot be negative")
	}
	return nil
}
