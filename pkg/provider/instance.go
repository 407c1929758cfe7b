package provider

import (
	"strings"

	"github.com/miekg/dns"
)

// InstanceConfig holds configuration for creating a provider instance.
type InstanceConfig struct {
	// Name is the instance name (e.g., "edge-dns").
	Name string

	// TypeName is the provider type (e.g., "cloudflare", "memory").
	TypeName string

	// Zones optionally restricts the zones this instance may manage.
	// Empty means any zone.
	Zones []string

	// Config holds provider-specific settings (URL, token, path, etc.).
	Config map[string]string
}

// Validate checks that the configuration is valid.
func (c *InstanceConfig) Validate() error {
	if c.Name == "" {
		return ErrConfigMissing("name")
	}
	if c.TypeName == "" {
		return ErrConfigMissing("type")
	}
	for _, zone := range c.Zones {
		if _, ok := dns.IsDomainName(zone); !ok || zone == "" {
			return ErrConfigInvalid("zones", zone, "not a valid domain name")
		}
	}
	return nil
}

// ManagesZone reports whether zone is within the instance's configured zones.
func (c *InstanceConfig) ManagesZone(zone string) bool {
	if len(c.Zones) == 0 {
		return true
	}
	want := strings.ToLower(dns.Fqdn(zone))
	for _, z := range c.Zones {
		if strings.ToLower(dns.Fqdn(z)) == want {
			return true
		}
	}
	return false
}
