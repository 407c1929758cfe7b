package rfc2136

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/dnsupdate"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// DefaultPageSize is the listing page size when none is configured.
const DefaultPageSize = 500

// Config holds RFC 2136 provider configuration: the server settings plus
// what the provider needs on top of them.
type Config struct {
	dnsupdate.Config

	// Zones are checked by Ping. Empty means Ping only checks the server answers.
	Zones []string

	// PageSize is the number of records per List page.
	PageSize int
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.PageSize < 0 {
		return provider.ErrConfigInvalid("page_size", strconv.Itoa(c.PageSize), "must be a positive integer")
	}
	return nil
}

// LoadConfigFromMap builds a Config from an instance's config block.
//
// Recognized keys:
//   - server: host or host:port of the authoritative server (required)
//   - tsig_key_name, tsig_secret, tsig_algorithm: TSIG key (optional)
//   - tsig_secret_file: file holding the TSIG secret; wins over tsig_secret
//   - timeout: per-exchange timeout, a duration ("5s") or seconds ("5")
//   - use_tcp: send queries and updates over TCP
//   - zones: comma-separated zones checked by Ping
//   - page_size: records per List page (default 500)
func LoadConfigFromMap(name string, m map[string]string) (*Config, error) {
	cfg := &Config{
		Config: dnsupdate.Config{
			Server:        strings.TrimSpace(m["server"]),
			TSIGKeyName:   strings.TrimSpace(m["tsig_key_name"]),
			TSIGSecret:    strings.TrimSpace(m["tsig_secret"]),
			TSIGAlgorithm: strings.TrimSpace(m["tsig_algorithm"]),
		},
		PageSize: DefaultPageSize,
	}

	if cfg.Server == "" {
		return nil, provider.ErrConfigMissing("server")
	}

	if path := strings.TrimSpace(m["tsig_secret_file"]); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, provider.ErrConfigInvalid("tsig_secret_file", path, err.Error())
		}
		cfg.TSIGSecret = strings.TrimSpace(string(content))
	}

	if v := strings.TrimSpace(m["timeout"]); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return nil, provider.ErrConfigInvalid("timeout", v, err.Error())
		}
		cfg.Timeout = d
	}

	if v := strings.TrimSpace(m["use_tcp"]); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, provider.ErrConfigInvalid("use_tcp", v, "must be true or false")
		}
		cfg.UseTCP = b
	}

	if v := strings.TrimSpace(m["page_size"]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, provider.ErrConfigInvalid("page_size", v, "must be a positive integer")
		}
		cfg.PageSize = n
	}

	for _, z := range strings.Split(m["zones"], ",") {
		if z = strings.TrimSpace(z); z != "" {
			cfg.Zones = append(cfg.Zones, z)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration for %s: %w", name, err)
	}
	return cfg, nil
}

func parseTimeout(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("must be non-negative")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("must be a duration or a number of seconds")
	}
	if d < 0 {
		return 0, fmt.Errorf("must be non-negative")
	}
	return d, nil
}
