package webhook

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is the default HTTP client timeout for webhook requests.
const DefaultTimeout = 30 * time.Second

// DefaultRetries is the default number of retry attempts for transient failures.
const DefaultRetries = 3

// DefaultRetryDelay is the base delay between retry attempts.
const DefaultRetryDelay = time.Second

// Config holds webhook-specific configuration.
type Config struct {
	URL        string        // Base URL for the webhook endpoint (required)
	Timeout    time.Duration // HTTP client timeout (default: 30s)
	AuthHeader string        // Custom authentication header name (optional)
	AuthToken  string        // Authentication token value (optional)
	Retries    int           // Number of retry attempts (default: 3)
	RetryDelay time.Duration // Base delay between retries (default: 1s)

	// SortedListing declares that the endpoint lists records ordered by
	// name, type, qualifier and data.
	SortedListing bool

	// Types restricts the accepted record types. Empty means any.
	Types []string
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.URL == "" {
		errs = append(errs, "url is required")
	} else if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		errs = append(errs, "url must start with http:// or https://")
	}

	// auth_header requires auth_token
	if c.AuthHeader != "" && c.AuthToken == "" {
		errs = append(errs, "auth_token is required when auth_header is set")
	}

	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	if c.Retries < 0 {
		errs = append(errs, "retries must be non-negative")
	}

	if c.RetryDelay < 0 {
		errs = append(errs, "retry_delay must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("webhook config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// LoadConfigFromMap builds a Config from a provider instance's settings.
// Keys are lower case; secrets have already been resolved by the loader.
//
// Supported settings:
//   - url: Base webhook URL (required)
//   - timeout: HTTP timeout duration (optional, default: 30s)
//   - auth_header: Custom auth header name (optional, e.g., "X-API-Key")
//   - auth_token: Auth token value (required if auth_header set)
//   - retries: Number of retry attempts (optional, default: 3)
//   - retry_delay: Base delay between retries (optional, default: 1s)
//   - sorted: whether the endpoint lists records in key order (optional)
//   - types: comma-separated record types the endpoint accepts (optional)
func LoadConfigFromMap(name string, m map[string]string) (*Config, error) {
	cfg := &Config{
		URL:        strings.TrimSpace(m["url"]),
		Timeout:    DefaultTimeout,
		AuthHeader: m["auth_header"],
		AuthToken:  m["auth_token"],
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
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

	if v := m["retry_delay"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("provider %s: invalid retry_delay %q: %w", name, v, err)
		}
		cfg.RetryDelay = d
	}

	if v := m["sorted"]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("provider %s: invalid sorted %q: %w", name, v, err)
		}
		cfg.SortedListing = b
	}

	for _, t := range strings.Split(m["types"], ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			cfg.Types = append(cfg.Types, t)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	return cfg, nil
}
