package dnsupdate

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// tsigFudge is the permitted clock skew, in seconds, for signed messages.
const tsigFudge = 300

// TSIG is a Transaction Signature key (RFC 8945) shared with the server.
type TSIG struct {
	// Name is the fully qualified key name.
	Name string

	// Secret is the base64-encoded shared secret.
	Secret string

	// Algorithm is the TSIG algorithm in miekg/dns form (e.g., dns.HmacSHA256).
	Algorithm string
}

// NewTSIG creates a TSIG key. The secret must be base64-encoded.
func NewTSIG(name, secret, algorithm string) (*TSIG, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("tsig key name is required")
	}
	if _, err := base64.StdEncoding.DecodeString(secret); err != nil {
		return nil, fmt.Errorf("tsig secret is not valid base64: %w", err)
	}

	alg := normalizeAlgorithm(algorithm)
	if !isValidAlgorithm(alg) {
		return nil, fmt.Errorf("unsupported tsig algorithm: %s", algorithm)
	}

	return &TSIG{
		Name:      dns.CanonicalName(name),
		Secret:    secret,
		Algorithm: alg,
	}, nil
}

// TSIGFromConfig creates the TSIG key of config, or nil when none is configured.
func TSIGFromConfig(config *Config) (*TSIG, error) {
	if !config.HasTSIG() {
		return nil, nil //nolint:nilnil // nil TSIG is valid (no auth)
	}
	return NewTSIG(config.TSIGKeyName, config.TSIGSecret, config.TSIGAlgorithm)
}

// secrets returns the key table miekg/dns expects on clients and transfers.
func (t *TSIG) secrets() map[string]string {
	if t == nil {
		return nil
	}
	return map[string]string{t.Name: t.Secret}
}

// Sign marks msg for signing; the signature is computed when it is sent.
func (t *TSIG) Sign(msg *dns.Msg) {
	if t == nil {
		return
	}
	msg.SetTsig(t.Name, t.Algorithm, tsigFudge, 0)
}

// normalizeAlgorithm maps user-facing algorithm names to miekg/dns format.
func normalizeAlgorithm(alg string) string {
	switch strings.ToLower(strings.TrimSpace(alg)) {
	case "":
		return DefaultTSIGAlgorithm
	case "hmac-md5", "md5", "hmac-md5.sig-alg.reg.int", "hmac-md5.sig-alg.reg.int.":
		return dns.HmacMD5
	case "hmac-sha256", "sha256", "hmac-sha256.":
		return dns.HmacSHA256
	case "hmac-sha512", "sha512", "hmac-sha512.":
		return dns.HmacSHA512
	default:
		return alg
	}
}

// isValidAlgorithm checks if the algorithm is supported.
func isValidAlgorithm(alg string) bool {
	switch alg {
	case dns.HmacMD5, dns.HmacSHA256, dns.HmacSHA512:
		return true
	default:
		return false
	}
}
