package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StorageConfig configures the MongoDB event store.
type StorageConfig struct {
	URI          string `yaml:"uri"`
	DatabaseName string `yaml:"database_name"`
	// Collections maps an event table to its collection.
	Collections map[string]string `yaml:"collections"`
}

// DefaultStorageConfig returns the default storage configuration.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		URI:          "mongodb://localhost:27017",
		DatabaseName: "eventidx",
		Collections: map[string]string{
			"event_summary": "event_summary",
			"event_archive": "event_archive",
		},
	}
}

func (c *StorageConfig) ApplyDefaults() {
	defaults := DefaultStorageConfig()
	if c.URI == "" {
		c.URI = defaults.URI
	}
	if c.DatabaseName == "" {
		c.DatabaseName = defaults.DatabaseName
	}
	if c.Collections == nil {
		c.Collections = defaults.Collections
	}
}

func (c *StorageConfig) ApplyEnvOverrides() {
	if val := os.Getenv("EVENTIDX_MONGO_URI"); val != "" {
		c.URI = val
	}
	if val := os.Getenv("EVENTIDX_MONGO_DATABASE"); val != "" {
		c.DatabaseName = val
	}
}

func (c *StorageConfig) ResolvePaths(_, _ string) {}

func (c *StorageConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("storage.uri is required")
	}
	if c.DatabaseName == "" {
		return fmt.Errorf("storage.database_name is required")
	}
	for _, table := range []string{"event_summary", "event_archive"} {
		if c.Collections[table] == "" {
			return fmt.Errorf("storage.collections.%s is required", table)
		}
	}
	return nil
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultNATSConfig returns the default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            "nats://localhost:4222",
		Name:           "eventidx",
		ConnectTimeout: 5 * time.Second,
	}
}

func (c *NATSConfig) ApplyDefaults() {
	defaults := DefaultNATSConfig()
	if c.URL == "" {
		c.URL = defaults.URL
	}
	if c.Name == "" {
		c.Name = defaults.Name
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
}

func (c *NATSConfig) ApplyEnvOverrides() {
	if val := os.Getenv("EVENTIDX_NATS_URL"); val != "" {
		c.URL = val
	}
}

func (c *NATSConfig) ResolvePaths(_, _ string) {}

func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	return nil
}

// QueueConfig configures the index work queues.
type QueueConfig struct {
	// Backend is "nats" or "memory".
	Backend       string        `yaml:"backend"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	AckWait       time.Duration `yaml:"ack_wait"`
	MaxAckPending int           `yaml:"max_ack_pending"`
	Replicas      int           `yaml:"replicas"`

	// NotifyPrefix is the subject prefix of indexed event notifications.
	// Empty disables the notification plugin.
	NotifyPrefix string `yaml:"notify_prefix"`
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Backend:       "nats",
		SubjectPrefix: "workqueue",
		AckWait:       30 * time.Second,
		MaxAckPending: 10000,
		Replicas:      1,
	}
}

func (c *QueueConfig) ApplyDefaults() {
	defaults := DefaultQueueConfig()
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaults.SubjectPrefix
	}
	if c.AckWait == 0 {
		c.AckWait = defaults.AckWait
	}
	if c.MaxAckPending == 0 {
		c.MaxAckPending = defaults.MaxAckPending
	}
	if c.Replicas == 0 {
		c.Replicas = defaults.Replicas
	}
}

func (c *QueueConfig) ApplyEnvOverrides() {
	if val := os.Getenv("EVENTIDX_QUEUE_BACKEND"); val != "" {
		c.Backend = val
	}
	if val := os.Getenv("EVENTIDX_QUEUE_REPLICAS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Replicas = n
		}
	}
	if val := os.Getenv("EVENTIDX_NOTIFY_PREFIX"); val != "" {
		c.NotifyPrefix = val
	}
}

func (c *QueueConfig) ResolvePaths(_, _ string) {}

func (c *QueueConfig) Validate() error {
	switch c.Backend {
	case "nats", "memory":
	default:
		return fmt.Errorf("queue.backend must be nats or memory, got %q", c.Backend)
	}
	if c.AckWait <= 0 {
		return fmt.Errorf("queue.ack_wait must be positive")
	}
	return nil
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true, Addr: ":9102"}
}

func (c *MetricsConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultMetricsConfig().Addr
	}
}

func (c *MetricsConfig) ApplyEnvOverrides() {
	if val := os.Getenv("EVENTIDX_METRICS_ADDR"); val != "" {
		c.Addr = val
	}
}

func (c *MetricsConfig) ResolvePaths(_, _ string) {}

func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}
