package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "logs", cfg.Dir)
	assert.Equal(t, 100, cfg.Rotation.MaxSize)
	assert.Equal(t, 10, cfg.Rotation.MaxBackups)
	assert.Equal(t, 30, cfg.Rotation.MaxAge)
	assert.True(t, cfg.Rotation.Compress)
	assert.True(t, cfg.Console.Enabled)
	assert.True(t, cfg.File.Enabled)
}

func TestLoggingConfigYAMLParsing(t *testing.T) {
	yamlData := `
level: "debug"
format: "json"
dir: "/var/log/eventidx"
rotation:
  max_size: 50
  max_backups: 5
  max_age: 14
  compress: false
console:
  enabled: false
  level: "warn"
  format: "text"
file:
  enabled: true
  level: "info"
  format: "json"
`

	var cfg LoggingConfig
	err := yaml.Unmarshal([]byte(yamlData), &cfg)

	assert.NoError(t, err)
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "/var/log/eventidx", cfg.Dir)
	assert.Equal(t, 50, cfg.Rotation.MaxSize)
	assert.False(t, cfg.Console.Enabled)
	assert.Equal(t, "json", cfg.File.Format)
}

func TestLoggingConfigApplyDefaults(t *testing.T) {
	cfg := &LoggingConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "logs", cfg.Dir)
	assert.Equal(t, 100, cfg.Rotation.MaxSize)
	assert.Equal(t, 10, cfg.Rotation.MaxBackups)
	assert.Equal(t, 30, cfg.Rotation.MaxAge)
	assert.False(t, cfg.Rotation.Compress)
	assert.True(t, cfg.Console.Enabled)
	assert.True(t, cfg.File.Enabled)
}

func TestLoggingConfigApplyDefaultsWithPartialConfig(t *testing.T) {
	cfg := &LoggingConfig{
		Level:  "debug",
		Format: "json",
		Console: ConsoleConfig{
			Enabled: true,
			Level:   "warn",
		},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "warn", cfg.Console.Level)

	assert.Equal(t, "logs", cfg.Dir)
	assert.Equal(t, 100, cfg.Rotation.MaxSize)
	assert.Equal(t, "json", cfg.Console.Format)
	assert.True(t, cfg.File.Enabled)
	assert.Equal(t, "debug", cfg.File.Level)
	assert.Equal(t, "json", cfg.File.Format)
}

func TestLoggingConfigResolvePaths(t *testing.T) {
	tests := []struct {
		name     string
		dir      string
		expected string
	}{
		{"relative path resolved from data_dir", "logs", "/app/data/logs"},
		{"absolute path unchanged", "/var/log/eventidx", "/var/log/eventidx"},
		{"relative with subdirs", "logs/app", "/app/data/logs/app"},
		{"empty dir unchanged", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &LoggingConfig{Dir: tt.dir}
			cfg.ResolvePaths("/app/config", "/app/data")
			assert.Equal(t, tt.expected, cfg.Dir)
		})
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *LoggingConfig)
		wantErr string
	}{
		{"valid", func(c *LoggingConfig) {}, ""},
		{"bad level", func(c *LoggingConfig) { c.Level = "trace" }, "invalid log level"},
		{"bad format", func(c *LoggingConfig) { c.Format = "xml" }, "invalid log format"},
		{"empty dir", func(c *LoggingConfig) { c.Dir = "" }, "log directory cannot be empty"},
		{"bad console level", func(c *LoggingConfig) { c.Console.Level = "loud" }, "invalid console log level"},
		{"bad console format", func(c *LoggingConfig) { c.Console.Format = "xml" }, "invalid console log format"},
		{"bad file level", func(c *LoggingConfig) { c.File.Level = "loud" }, "invalid file log level"},
		{"bad file format", func(c *LoggingConfig) { c.File.Format = "xml" }, "invalid file log format"},
		{"disabled console not checked", func(c *LoggingConfig) {
			c.Console.Enabled = false
			c.Console.Level = "loud"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLoggingConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoggingConfigApplyEnvOverrides(t *testing.T) {
	t.Setenv("EVENTIDX_LOG_LEVEL", "DEBUG")
	t.Setenv("EVENTIDX_LOG_FORMAT", "json")
	t.Setenv("EVENTIDX_LOG_DIR", "/tmp/logs")

	cfg := DefaultLoggingConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "debug", cfg.Console.Level)
	assert.Equal(t, "debug", cfg.File.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "/tmp/logs", cfg.Dir)
}
