package migration

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the migration consumer configuration.
type Config struct {
	// Enabled starts the consumers.
	Enabled bool `yaml:"enabled"`

	// StreamName is the JetStream stream migrated events are published to.
	StreamName string `yaml:"stream_name"`

	// Queues maps an event table to the queue identifier its migrated
	// events arrive on. Each queue gets its own durable consumer.
	Queues map[string]string `yaml:"queues"`

	// Prefetch bounds unacknowledged messages per consumer.
	Prefetch int `yaml:"prefetch"`

	// AckWait is how long the broker waits before redelivering.
	AckWait time.Duration `yaml:"ack_wait"`

	// HandleTimeout bounds one import, including the one finished after
	// shutdown was requested.
	HandleTimeout time.Duration `yaml:"handle_timeout"`

	// SeenCacheSize is the number of recently imported UUIDs remembered
	// to tell redeliveries apart from foreign duplicates in the logs.
	SeenCacheSize int `yaml:"seen_cache_size"`

	// RequeueDelay is the redelivery delay after a transient failure. It
	// doubles with every further delivery of the same message.
	RequeueDelay time.Duration `yaml:"requeue_delay"`
}

// maxRequeueDelay caps the backoff of a repeatedly failing message.
const maxRequeueDelay = 30 * time.Second

// DefaultConfig returns the default migration configuration.
func DefaultConfig() Config {
	return Config{
		StreamName: "migrated",
		Queues: map[string]string{
			"event_summary": "summary",
			"event_archive": "archive",
		},
		Prefetch:      100,
		AckWait:       30 * time.Second,
		HandleTimeout: 10 * time.Second,
		SeenCacheSize: 10000,
		RequeueDelay:  time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.StreamName == "" {
		c.StreamName = defaults.StreamName
	}
	if len(c.Queues) == 0 {
		c.Queues = defaults.Queues
	}
	if c.Prefetch == 0 {
		c.Prefetch = defaults.Prefetch
	}
	if c.AckWait == 0 {
		c.AckWait = defaults.AckWait
	}
	if c.HandleTimeout == 0 {
		c.HandleTimeout = defaults.HandleTimeout
	}
	if c.SeenCacheSize == 0 {
		c.SeenCacheSize = defaults.SeenCacheSize
	}
	if c.RequeueDelay == 0 {
		c.RequeueDelay = defaults.RequeueDelay
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("EVENTIDX_MIGRATION_ENABLED"); val != "" {
		c.Enabled = val == "true" || val == "1"
	}
	if val := os.Getenv("EVENTIDX_MIGRATION_PREFETCH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Prefetch = n
		}
	}
}

// ResolvePaths is a no-op; the section has no paths.
func (c *Config) ResolvePaths(_, _ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.Prefetch <= 0 {
		return fmt.Errorf("migration.prefetch must be positive, got %d", c.Prefetch)
	}
	if c.SeenCacheSize <= 0 {
		return fmt.Errorf("migration.seen_cache_size must be positive, got %d", c.SeenCacheSize)
	}
	for table, queue := range c.Queues {
		if queue == "" {
			return fmt.Errorf("migration.queues.%s: queue identifier cannot be empty", table)
		}
	}
	return nil
}

// ConsumerName is the durable consumer name of a queue identifier.
func ConsumerName(queue string) string {
	return "migration-" + queue
}

// Subject is the subject migrated events of a queue are published on.
func (c *Config) Subject(queue string) string {
	return c.StreamName + "." + queue
}
