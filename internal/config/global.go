package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Global configuration defaults.
const (
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultDryRun       = false
	DefaultTTL          = rrset.DefaultTTL
	DefaultSyncInterval = 60 * time.Second
	DefaultHealthPort   = 8080
	DefaultMode         = provider.ModeManaged
)

// GlobalConfig holds application-wide settings.
type GlobalConfig struct {
	// Logging configuration
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Sync behavior
	DryRun       bool                     // If true, plan writes without issuing them
	DefaultTTL   int                      // TTL for created records when a set has none
	SyncInterval time.Duration            // How often a watching sync re-applies the desired state
	Mode         provider.OperationalMode // Default mode for desired zones that set none
	Watch        bool                     // Re-sync when the desired-state file changes

	// Job bounds the wait for asynchronous provider writes.
	Job reconciler.JobConfig

	HealthPort int // Port for health/metrics endpoints
}

// defaultGlobalConfig returns a GlobalConfig with every default applied.
func defaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		DryRun:       DefaultDryRun,
		DefaultTTL:   DefaultTTL,
		SyncInterval: DefaultSyncInterval,
		Mode:         DefaultMode,
		Job:          reconciler.DefaultJobConfig(),
		HealthPort:   DefaultHealthPort,
	}
}

// applyEnvOverrides applies ZONEWEAVER_* variables on top of cfg.
// Environment variables always take precedence over file config.
// Returns a list of validation errors (may be empty).
func applyEnvOverrides(cfg *GlobalConfig) []string {
	var errs []string

	if v := getEnv("ZONEWEAVER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getEnv("ZONEWEAVER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if v := getEnv("ZONEWEAVER_DRY_RUN"); v != "" {
		cfg.DryRun = parseBool(v, cfg.DryRun)
	}

	if v := getEnv("ZONEWEAVER_HEALTH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ZONEWEAVER_HEALTH_PORT: invalid integer %q", v))
		} else {
			cfg.HealthPort = port
		}
	}

	if v := getEnv("ZONEWEAVER_SYNC_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ZONEWEAVER_SYNC_INTERVAL: invalid duration %q (use format like 60s, 5m)", v))
		} else {
			cfg.SyncInterval = interval
		}
	}

	if v := getEnv("ZONEWEAVER_WATCH"); v != "" {
		cfg.Watch = parseBool(v, cfg.Watch)
	}

	if v := getEnv("ZONEWEAVER_MODE"); v != "" {
		mode, err := provider.ParseOperationalMode(v)
		if err != nil {
			errs = append(errs, "ZONEWEAVER_MODE: "+err.Error())
		} else {
			cfg.Mode = mode
		}
	}

	return errs
}

// validateGlobalConfig checks value ranges after file and env are merged.
func validateGlobalConfig(cfg *GlobalConfig) []string {
	var errs []string

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("log level: invalid value %q (must be debug, info, warn, or error)", cfg.LogLevel))
	}

	switch cfg.LogFormat {
	case "json", "text":
		// Valid
	default:
		errs = append(errs, fmt.Sprintf("log format: invalid value %q (must be json or text)", cfg.LogFormat))
	}

	if cfg.HealthPort < 1 || cfg.HealthPort > 65535 {
		errs = append(errs, fmt.Sprintf("health port: must be between 1 and 65535, got %d", cfg.HealthPort))
	}
	if cfg.SyncInterval < time.Second {
		errs = append(errs, "sync interval: must be at least 1s")
	}
	if cfg.DefaultTTL < 0 {
		errs = append(errs, fmt.Sprintf("default ttl: must be non-negative, got %d", cfg.DefaultTTL))
	}
	if !cfg.Mode.IsValid() {
		errs = append(errs, fmt.Sprintf("sync mode: invalid value %q", cfg.Mode))
	}
	if cfg.Job.Attempts < 1 {
		errs = append(errs, fmt.Sprintf("job attempts: must be at least 1, got %d", cfg.Job.Attempts))
	}

	return errs
}
