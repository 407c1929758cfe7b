package config

import (
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// ProviderInstanceConfig holds configuration for a single provider instance.
// This is created during config loading and passed to the provider registry.
type ProviderInstanceConfig struct {
	// Name is the user-provided instance name (e.g., "edge-dns").
	Name string

	// TypeName is the provider type (e.g., "cloudflare", "sqlite").
	TypeName string

	// Zones optionally restricts the zones the instance may manage.
	Zones []string

	// ProviderConfig holds provider-specific settings with secrets resolved.
	// Keys are lower-case setting names (e.g., "url", "token", "path").
	ProviderConfig map[string]string
}

// ToProviderConfig converts this config to the provider package's config type.
func (c *ProviderInstanceConfig) ToProviderConfig() provider.InstanceConfig {
	return provider.InstanceConfig{
		Name:     c.Name,
		TypeName: c.TypeName,
		Zones:    c.Zones,
		Config:   c.ProviderConfig,
	}
}

// convertFileProvider converts a FileProviderConfig to ProviderInstanceConfig.
func convertFileProvider(fp FileProviderConfig) (*ProviderInstanceConfig, []string) {
	var errs []string

	cfg := &ProviderInstanceConfig{
		Name:     fp.Name,
		TypeName: strings.ToLower(fp.Type),
	}

	if cfg.Name == "" {
		errs = append(errs, "provider: name is required")
	}
	if cfg.TypeName == "" {
		errs = append(errs, "provider "+cfg.Name+": type is required")
	}

	for _, zone := range fp.Zones {
		if _, ok := dns.IsDomainName(zone); !ok || zone == "" {
			errs = append(errs, "provider "+cfg.Name+": invalid zone "+zone)
			continue
		}
		cfg.Zones = append(cfg.Zones, dns.Fqdn(strings.ToLower(zone)))
	}

	settings, secretErrs := resolveSecrets(cfg.Name, fp.Config)
	cfg.ProviderConfig = settings
	errs = append(errs, secretErrs...)

	return cfg, errs
}
