package cloudflare

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Configuration defaults.
const (
	// DefaultPageSize is the per_page value used for listings. Cloudflare
	// accepts at most 5000.
	DefaultPageSize = 100

	// DefaultRetries is the number of times a throttled or failed request is re-sent.
	DefaultRetries = 3
)

// Config holds Cloudflare-specific configuration.
type Config struct {
	Token       string            // API token (Bearer authentication)
	APIEndpoint string            // Base URL, defaults to DefaultAPIEndpoint
	ZoneIDs     map[string]string // Canonical zone name -> zone ID; others are looked up
	PageSize    int               // Records per listing page
	Proxied     bool              // Whether new records are proxied through Cloudflare
	Timeout     time.Duration     // HTTP timeout
	Retries     int               // Retries on 429/5xx
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.Token == "" {
		errs = append(errs, "token is required")
	}
	if c.PageSize <= 0 || c.PageSize > 5000 {
		errs = append(errs, "page_size must be between 1 and 5000")
	}
	if c.Retries < 0 {
		errs = append(errs, "retries must be non-negative")
	}
	for zone, id := range c.ZoneIDs {
		if _, ok := dns.IsDomainName(zone); !ok || id == "" {
			errs = append(errs, fmt.Sprintf("zone_ids: invalid entry %q=%q", zone, id))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cloudflare config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// LoadConfigFromMap builds a Config from provider settings.
//
// Supported settings:
//   - token: API token (required; token_file and ZONEWEAVER_<NAME>_TOKEN[_FILE] are resolved by the config loader)
//   - api_endpoint: API base URL (optional)
//   - zone_ids: "example.com=ID,other.org=ID" to skip zone lookups (optional)
//   - page_size: per_page for listings (optional, default 100)
//   - proxied: proxy created records (optional, default false)
//   - timeout: HTTP timeout such as "30s" (optional)
//   - retries: retries on 429/5xx (optional, default 3)
func LoadConfigFromMap(name string, m map[string]string) (*Config, error) {
	cfg := &Config{
		Token:       m["token"],
		APIEndpoint: m["api_endpoint"],
		ZoneIDs:     map[string]string{},
		PageSize:    DefaultPageSize,
		Proxied:     parseBool(m["proxied"]),
		Retries:     DefaultRetries,
	}

	for _, entry := range strings.Split(m["zone_ids"], ",") {
		if entry = strings.TrimSpace(entry); entry == "" {
			continue
		}
		zone, id, _ := strings.Cut(entry, "=")
		cfg.ZoneIDs[dns.CanonicalName(strings.TrimSpace(zone))] = strings.TrimSpace(id)
	}

	if v := m["page_size"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("provider %s: invalid page_size %q: %w", name, v, err)
		}
		cfg.PageSize = n
	}

	if v := m["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("provider %s: invalid timeout %q: %w", name, v, err)
		}
		cfg.Timeout = d
	}

	if v := m["retries"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("provider %s: invalid retries %q: %w", name, v, err)
		}
		cfg.Retries = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	return cfg, nil
}

// parseBool parses a boolean string.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
