// Package config handles loading and validation of zoneweaver configuration:
// the service config file (YAML or TOML) with ZONEWEAVER_* environment
// overrides, and the desired-state file a sync applies.
package config

import (
	"fmt"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// Config holds the complete runtime configuration.
type Config struct {
	Global            *GlobalConfig
	ProviderInstances []*ProviderInstanceConfig
}

func (c *Config) LogLevel() string               { return c.Global.LogLevel }
func (c *Config) LogFormat() string              { return c.Global.LogFormat }
func (c *Config) DryRun() bool                   { return c.Global.DryRun }
func (c *Config) SyncInterval() time.Duration    { return c.Global.SyncInterval }
func (c *Config) HealthPort() int                { return c.Global.HealthPort }
func (c *Config) Mode() provider.OperationalMode { return c.Global.Mode }
func (c *Config) Watch() bool                    { return c.Global.Watch }

// ProviderNames returns the configured instance names in file order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.ProviderInstances))
	for _, inst := range c.ProviderInstances {
		names = append(names, inst.Name)
	}
	return names
}

// GetProviderInstance returns the instance config with the given name.
func (c *Config) GetProviderInstance(name string) (*ProviderInstanceConfig, bool) {
	for _, inst := range c.ProviderInstances {
		if inst.Name == name {
			return inst, true
		}
	}
	return nil, false
}

// ReconcilerConfig derives the reconciler settings.
func (c *Config) ReconcilerConfig() reconciler.Config {
	cfg := reconciler.DefaultConfig()
	cfg.DryRun = c.Global.DryRun
	cfg.DefaultTTL = c.Global.DefaultTTL
	cfg.Job = c.Global.Job
	return cfg
}

// String renders a one-line summary safe for logging; provider settings are
// omitted since they may hold secrets.
func (c *Config) String() string {
	return fmt.Sprintf("Config{LogLevel: %s, DryRun: %v, Mode: %s, SyncInterval: %s, Providers: [%s]}",
		c.Global.LogLevel, c.Global.DryRun, c.Global.Mode, c.Global.SyncInterval,
		strings.Join(c.ProviderNames(), ", "))
}
