package config

import (
	"log/slog"
)

// Load builds the runtime configuration from the file at path (optional) and
// ZONEWEAVER_* environment overrides. Every problem found is reported in a
// single *ValidationError.
func Load(path string) (*Config, error) {
	var errs []string

	global, providers, fileErrs := loadFromFile(path)
	errs = append(errs, fileErrs...)
	if global == nil {
		global = defaultGlobalConfig()
	}

	errs = append(errs, applyEnvOverrides(global)...)

	cfg := &Config{
		Global:            global,
		ProviderInstances: providers,
	}
	errs = append(errs, validateConfig(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// loadFromFile loads configuration from a file and converts it to runtime types.
// Returns nil values if no file is configured.
func loadFromFile(path string) (*GlobalConfig, []*ProviderInstanceConfig, []string) {
	if path == "" {
		return nil, nil, nil
	}

	fileCfg, err := LoadFile(path)
	if err != nil {
		return nil, nil, []string{"config file: " + err.Error()}
	}

	slog.Info("loaded configuration from file", slog.String("path", path))

	global, errs := fileCfg.ToGlobalConfig()

	var providers []*ProviderInstanceConfig
	for _, fp := range fileCfg.Providers {
		p, pErrs := convertFileProvider(fp)
		providers = append(providers, p)
		errs = append(errs, pErrs...)
	}

	return global, providers, errs
}
