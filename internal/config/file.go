package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// FileConfig represents the configuration file structure.
// YAML is the default; a path ending in .toml is read as TOML.
type FileConfig struct {
	// Logging configuration
	Logging *FileLoggingConfig `yaml:"logging,omitempty" toml:"logging,omitempty"`

	// Sync settings
	Sync *FileSyncConfig `yaml:"sync,omitempty" toml:"sync,omitempty"`

	// DNS providers
	Providers []FileProviderConfig `yaml:"providers,omitempty" toml:"providers,omitempty"`

	// Health and metrics server
	Server *FileServerConfig `yaml:"server,omitempty" toml:"server,omitempty"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format,omitempty"` // json, text
}

// FileSyncConfig holds sync and reconciliation settings.
type FileSyncConfig struct {
	Interval     string `yaml:"interval,omitempty" toml:"interval,omitempty"`             // Go duration format (e.g., "60s", "5m")
	DryRun       *bool  `yaml:"dry_run,omitempty" toml:"dry_run,omitempty"`               // Pointer to distinguish unset from false
	Mode         string `yaml:"mode,omitempty" toml:"mode,omitempty"`                     // managed, authoritative, additive
	Watch        *bool  `yaml:"watch,omitempty" toml:"watch,omitempty"`                   // Re-sync on desired-state changes
	DefaultTTL   *int   `yaml:"default_ttl,omitempty" toml:"default_ttl,omitempty"`       // TTL for sets that declare none
	JobAttempts  int    `yaml:"job_attempts,omitempty" toml:"job_attempts,omitempty"`     // Status polls per async write
	JobBaseDelay string `yaml:"job_base_delay,omitempty" toml:"job_base_delay,omitempty"` // First wait between polls
	JobMaxDelay  string `yaml:"job_max_delay,omitempty" toml:"job_max_delay,omitempty"`   // Cap on the wait between polls
}

// FileProviderConfig holds configuration for a DNS provider instance.
type FileProviderConfig struct {
	Name   string            `yaml:"name" toml:"name"`                         // Unique instance name
	Type   string            `yaml:"type" toml:"type"`                         // memory, sqlite, cloudflare, webhook
	Zones  []string          `yaml:"zones,omitempty" toml:"zones,omitempty"`   // Zones the instance may manage
	Config map[string]string `yaml:"config,omitempty" toml:"config,omitempty"` // Provider-specific settings
}

// FileServerConfig holds health/metrics server settings.
type FileServerConfig struct {
	Port int `yaml:"port,omitempty" toml:"port,omitempty"` // Port for health/metrics endpoints
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// interpolateEnvVars interpolates environment variables in every string
// field of the config structure.
func (c *FileConfig) interpolateEnvVars() {
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}

	if c.Sync != nil {
		c.Sync.Interval = InterpolateEnvVars(c.Sync.Interval)
		c.Sync.Mode = InterpolateEnvVars(c.Sync.Mode)
		c.Sync.JobBaseDelay = InterpolateEnvVars(c.Sync.JobBaseDelay)
		c.Sync.JobMaxDelay = InterpolateEnvVars(c.Sync.JobMaxDelay)
	}

	for i := range c.Providers {
		p := &c.Providers[i]
		p.Name = InterpolateEnvVars(p.Name)
		p.Type = InterpolateEnvVars(p.Type)
		for j := range p.Zones {
			p.Zones[j] = InterpolateEnvVars(p.Zones[j])
		}
		for k, v := range p.Config {
			p.Config[k] = InterpolateEnvVars(v)
		}
	}
}

// isTOML reports whether path should be decoded as TOML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// decodeFile reads path into out, as TOML or YAML by extension.
func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if isTOML(path) {
		if _, err := toml.Decode(string(data), out); err != nil {
			return fmt.Errorf("parsing TOML config: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing YAML config: %w", err)
	}
	return nil
}

// LoadFile reads and parses a configuration file.
// Environment variables in ${VAR} format are interpolated.
func LoadFile(path string) (*FileConfig, error) {
	var cfg FileConfig
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Interpolate environment variables in all string fields
	cfg.interpolateEnvVars()

	return &cfg, nil
}

// ToGlobalConfig converts file config to GlobalConfig, applying defaults.
// Values from file take precedence over defaults; env vars override later.
func (c *FileConfig) ToGlobalConfig() (*GlobalConfig, []string) {
	cfg := defaultGlobalConfig()
	var errs []string

	if c.Logging != nil {
		if c.Logging.Level != "" {
			cfg.LogLevel = strings.ToLower(c.Logging.Level)
		}
		if c.Logging.Format != "" {
			cfg.LogFormat = strings.ToLower(c.Logging.Format)
		}
	}

	if s := c.Sync; s != nil {
		if s.DryRun != nil {
			cfg.DryRun = *s.DryRun
		}
		if s.Watch != nil {
			cfg.Watch = *s.Watch
		}
		if s.DefaultTTL != nil {
			cfg.DefaultTTL = *s.DefaultTTL
		}
		if s.Mode != "" {
			mode, err := provider.ParseOperationalMode(s.Mode)
			if err != nil {
				errs = append(errs, "sync: "+err.Error())
			} else {
				cfg.Mode = mode
			}
		}
		parseDuration(&errs, "sync.interval", s.Interval, &cfg.SyncInterval)
		parseDuration(&errs, "sync.job_base_delay", s.JobBaseDelay, &cfg.Job.BaseDelay)
		parseDuration(&errs, "sync.job_max_delay", s.JobMaxDelay, &cfg.Job.MaxDelay)
		if s.JobAttempts != 0 {
			cfg.Job.Attempts = s.JobAttempts
		}
	}

	if c.Server != nil && c.Server.Port != 0 {
		cfg.HealthPort = c.Server.Port
	}

	return cfg, errs
}

// parseDuration sets *dst from a non-empty Go duration string.
func parseDuration(errs *[]string, field, value string, dst *time.Duration) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q (use format like 60s, 5m)", field, value))
		return
	}
	*dst = d
}

// GetConfigFilePath returns the config file path from the environment.
// Returns empty string if no config file is specified.
func GetConfigFilePath() string {
	return os.Getenv("ZONEWEAVER_CONFIG")
}
