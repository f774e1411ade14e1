package config

import "errors"

// ServiceConfig is implemented by every config section.
type ServiceConfig interface {
	ApplyDefaults()
	ApplyEnvOverrides()
	// ResolvePaths makes relative paths absolute. Files shipped with the
	// configuration resolve against configDir, runtime state such as the
	// index store against dataDir.
	ResolvePaths(configDir, dataDir string)
	Validate() error
}

// ApplyServiceConfigs runs ApplyDefaults, ApplyEnvOverrides, ResolvePaths
// and Validate on each section in turn. Every section is processed; the
// validation errors of all of them are joined.
func ApplyServiceConfigs(configDir, dataDir string, configs ...ServiceConfig) error {
	var errs []error
	for _, cfg := range configs {
		cfg.ApplyDefaults()
		cfg.ApplyEnvOverrides()
		cfg.ResolvePaths(configDir, dataDir)
		if err := cfg.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
