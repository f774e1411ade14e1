// Package config loads the process configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	indexer "github.com/eventidx/eventidx/internal/indexer/config"
	"github.com/eventidx/eventidx/internal/migration"
)

// Config holds the application configuration
type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Storage   StorageConfig    `yaml:"storage"`
	NATS      NATSConfig       `yaml:"nats"`
	Queue     QueueConfig      `yaml:"queue"`
	Indexer   indexer.Config   `yaml:"indexer"`
	Migration migration.Config `yaml:"migration"`
	Metrics   MetricsConfig    `yaml:"metrics"`

	// DataDir is the base directory of runtime data such as indexes.
	DataDir string `yaml:"data_dir"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Logging:   DefaultLoggingConfig(),
		Storage:   DefaultStorageConfig(),
		NATS:      DefaultNATSConfig(),
		Queue:     DefaultQueueConfig(),
		Indexer:   indexer.DefaultConfig(),
		Migration: migration.DefaultConfig(),
		Metrics:   DefaultMetricsConfig(),
		DataDir:   "data",
	}
}

// Load loads configuration from configDir and environment variables.
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults ->
// ApplyEnvOverrides -> ResolvePaths -> Validate
func Load(configDir string) (*Config, error) {
	cfg := Default()

	loadFile(filepath.Join(configDir, "config.yml"), cfg)
	loadFile(filepath.Join(configDir, "config.local.yml"), cfg)

	if val := os.Getenv("EVENTIDX_DATA_DIR"); val != "" {
		cfg.DataDir = val
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(filepath.Dir(configDir), cfg.DataDir)
	}

	if err := ApplyServiceConfigs(configDir, cfg.DataDir,
		&cfg.Logging,
		&cfg.Storage,
		&cfg.NATS,
		&cfg.Queue,
		&cfg.Indexer,
		&cfg.Migration,
		&cfg.Metrics,
	); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func loadFile(filename string, cfg *Config) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		slog.Warn("Error reading config file", "file", filename, "error", err)
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Error parsing config file", "file", filename, "error", err)
	}
}
