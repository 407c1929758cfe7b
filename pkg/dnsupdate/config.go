package dnsupdate

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Default configuration values.
const (
	// DefaultPort is the standard DNS port.
	DefaultPort = 53

	// DefaultTimeout is the default timeout for DNS operations.
	DefaultTimeout = 10 * time.Second

	// DefaultTSIGAlgorithm is the default TSIG algorithm if none specified.
	DefaultTSIGAlgorithm = TSIGAlgorithmSHA256
)

// TSIG algorithm constants matching miekg/dns format.
const (
	// TSIGAlgorithmMD5 is HMAC-MD5 (legacy, not recommended).
	TSIGAlgorithmMD5 = dns.HmacMD5

	// TSIGAlgorithmSHA256 is HMAC-SHA256 (recommended).
	TSIGAlgorithmSHA256 = dns.HmacSHA256

	// TSIGAlgorithmSHA512 is HMAC-SHA512 (strongest).
	TSIGAlgorithmSHA512 = dns.HmacSHA512
)

// Config holds the settings for talking to one authoritative server. Zones
// are chosen per call, so one client serves every zone the server hosts.
type Config struct {
	// Server is the DNS server address, host or host:port (required).
	// If port is omitted, defaults to 53.
	Server string

	// TSIGKeyName is the TSIG key name for authentication (optional but recommended).
	TSIGKeyName string

	// TSIGSecret is the base64-encoded TSIG shared secret.
	TSIGSecret string

	// TSIGAlgorithm is the TSIG algorithm (default: hmac-sha256).
	// Supported: hmac-md5, hmac-sha256, hmac-sha512.
	TSIGAlgorithm string

	// Timeout bounds each exchange (default: 10s).
	Timeout time.Duration

	// UseTCP sends queries and updates over TCP. Zone transfers always use TCP.
	UseTCP bool
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server == "" {
		errs = append(errs, "server is required")
	} else if _, _, err := net.SplitHostPort(c.GetServer()); err != nil {
		errs = append(errs, fmt.Sprintf("invalid server %q: %v", c.Server, err))
	}

	// If any TSIG field is set, require key name and secret
	if c.TSIGKeyName != "" || c.TSIGSecret != "" || c.TSIGAlgorithm != "" {
		if c.TSIGKeyName == "" {
			errs = append(errs, "tsig_key_name is required when using TSIG authentication")
		}
		if c.TSIGSecret == "" {
			errs = append(errs, "tsig_secret is required when using TSIG authentication")
		}
		if !isValidAlgorithm(c.GetTSIGAlgorithm()) {
			errs = append(errs, fmt.Sprintf("unsupported tsig_algorithm: %s (supported: hmac-md5, hmac-sha256, hmac-sha512)", c.TSIGAlgorithm))
		}
	}

	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("dnsupdate config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetServer returns the server address with port. A bare host, including
// a bare IPv6 address, gets the default DNS port.
func (c *Config) GetServer() string {
	server := strings.TrimSpace(c.Server)
	if server == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	host := strings.TrimSuffix(strings.TrimPrefix(server, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(DefaultPort))
}

// GetTimeout returns the configured timeout or the default.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// GetTSIGAlgorithm returns the TSIG algorithm in miekg/dns format.
func (c *Config) GetTSIGAlgorithm() string {
	return normalizeAlgorithm(c.TSIGAlgorithm)
}

// HasTSIG returns true if TSIG authentication is configured.
func (c *Config) HasTSIG() bool {
	return c.TSIGKeyName != "" && c.TSIGSecret != ""
}
