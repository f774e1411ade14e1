package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mockServiceConfig implements ServiceConfig for testing ApplyServiceConfigs
type mockServiceConfig struct {
	calls       []string
	configDir   string
	dataDir     string
	validateErr error
}

func (m *mockServiceConfig) ApplyDefaults()     { m.calls = append(m.calls, "defaults") }
func (m *mockServiceConfig) ApplyEnvOverrides() { m.calls = append(m.calls, "env") }

func (m *mockServiceConfig) ResolvePaths(configDir, dataDir string) {
	m.calls = append(m.calls, "paths")
	m.configDir = configDir
	m.dataDir = dataDir
}

func (m *mockServiceConfig) Validate() error {
	m.calls = append(m.calls, "validate")
	return m.validateErr
}

func TestApplyServiceConfigs_AllMethodsCalled(t *testing.T) {
	cfg1 := &mockServiceConfig{}
	cfg2 := &mockServiceConfig{}

	err := ApplyServiceConfigs("config", "data", cfg1, cfg2)

	assert.NoError(t, err)
	for _, cfg := range []*mockServiceConfig{cfg1, cfg2} {
		assert.Equal(t, []string{"defaults", "env", "paths", "validate"}, cfg.calls)
		assert.Equal(t, "config", cfg.configDir)
		assert.Equal(t, "data", cfg.dataDir)
	}
}

func TestApplyServiceConfigs_ReportsEveryInvalidSection(t *testing.T) {
	first := &mockServiceConfig{validateErr: errors.New("queue.backend invalid")}
	valid := &mockServiceConfig{}
	second := &mockServiceConfig{validateErr: errors.New("migration.prefetch invalid")}

	err := ApplyServiceConfigs("config", "data", first, valid, second)

	assert.ErrorIs(t, err, first.validateErr)
	assert.ErrorIs(t, err, second.validateErr)
	assert.Equal(t, []string{"defaults", "env", "paths", "validate"}, valid.calls)
}

func TestApplyServiceConfigs_Empty(t *testing.T) {
	assert.NoError(t, ApplyServiceConfigs("config", "data"))
}
