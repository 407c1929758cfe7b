package dnsupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// Sentinel errors for RFC 2136 operations. Each wraps the provider error
// callers match on.
var (
	// ErrUpdateFailed is returned when the server rejects a DNS UPDATE.
	ErrUpdateFailed = errors.New("dns update failed")

	// ErrAuthenticationFailed is returned when the server refuses the TSIG
	// key or the update policy.
	ErrAuthenticationFailed = fmt.Errorf("tsig authentication failed: %w", provider.ErrUnauthorized)

	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = fmt.Errorf("connection to dns server failed: %w", provider.ErrProviderUnavailable)

	// ErrZoneNotFound is returned when the server is not authoritative for a zone.
	ErrZoneNotFound = fmt.Errorf("zone not served: %w", provider.ErrNotFound)

	// ErrPrerequisiteFailed is returned when a record an update requires
	// is not on the server.
	ErrPrerequisiteFailed = fmt.Errorf("update prerequisite not met: %w", provider.ErrNotFound)

	// ErrAXFRFailed is returned when a zone transfer (AXFR) fails.
	// This typically happens when the server blocks zone transfers.
	ErrAXFRFailed = errors.New("zone transfer (AXFR) failed")
)

// Client sends queries, updates and zone transfers to one server.
type Client struct {
	config *Config
	tsig   *TSIG
	logger *slog.Logger

	dnsClient *dns.Client
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithLogger sets a custom logger for the DNS update client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new RFC 2136 Dynamic DNS client with the given configuration.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tsig, err := TSIGFromConfig(config)
	if err != nil {
		return nil, fmt.Errorf("invalid TSIG configuration: %w", err)
	}

	c := &Client{
		config: config,
		tsig:   tsig,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.dnsClient = &dns.Client{
		Net:        "udp",
		Timeout:    config.GetTimeout(),
		TsigSecret: tsig.secrets(),
	}
	if config.UseTCP {
		c.dnsClient.Net = "tcp"
	}

	c.logger.Debug("RFC 2136 client initialized",
		slog.String("server", config.GetServer()),
		slog.Bool("tsig", tsig != nil),
		slog.Bool("tcp", config.UseTCP),
	)

	return c, nil
}

// Server returns the configured server address.
func (c *Client) Server() string {
	return c.config.GetServer()
}

// Ping verifies the server answers. With a zone it also checks the server
// is authoritative for it.
func (c *Client) Ping(ctx context.Context, zone string) error {
	if zone != "" {
		_, err := c.SOA(ctx, zone)
		return err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(".", dns.TypeNS)
	msg.RecursionDesired = false

	resp, rtt, err := c.exchange(ctx, msg)
	if err != nil {
		return err
	}
	c.logger.Debug("DNS server ping successful",
		slog.Duration("rtt", rtt),
		slog.String("rcode", dns.RcodeToString[resp.Rcode]),
	)
	return nil
}

// SOA returns the zone's SOA record, or ErrZoneNotFound when the server is
// not authoritative for zone.
func (c *Client) SOA(ctx context.Context, zone string) (*dns.SOA, error) {
	zone = dns.CanonicalName(zone)

	msg := new(dns.Msg)
	msg.SetQuestion(zone, dns.TypeSOA)
	msg.RecursionDesired = false

	resp, _, err := c.exchange(ctx, msg)
	if err != nil {
		return nil, err
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError, dns.RcodeNotAuth, dns.RcodeRefused, dns.RcodeNotZone:
		return nil, fmt.Errorf("%w: %s (%s)", ErrZoneNotFound, zone, dns.RcodeToString[resp.Rcode])
	default:
		return nil, fmt.Errorf("%w: SOA query for %s returned %s", ErrConnectionFailed, zone, dns.RcodeToString[resp.Rcode])
	}

	for _, rr := range resp.Answer {
		if soa, ok := rr.(*dns.SOA); ok && dns.CanonicalName(soa.Hdr.Name) == zone {
			return soa, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrZoneNotFound, zone)
}

// Change is the content of one UPDATE message.
type Change struct {
	// Require lists records, data included, that must exist for the
	// update to apply. TTLs are ignored.
	Require []dns.RR

	// Remove lists individual records to delete.
	Remove []dns.RR

	// Insert lists records to add.
	Insert []dns.RR
}

func (ch Change) all() []dns.RR {
	out := make([]dns.RR, 0, len(ch.Require)+len(ch.Remove)+len(ch.Insert))
	out = append(out, ch.Require...)
	out = append(out, ch.Remove...)
	return append(out, ch.Insert...)
}

// Update sends ch to the server as one UPDATE message for zone. The server
// applies it atomically, and only when every required record exists.
func (c *Client) Update(ctx context.Context, zone string, ch Change) error {
	zone = dns.CanonicalName(zone)
	for _, rr := range ch.all() {
		if !dns.IsSubDomain(zone, dns.CanonicalName(rr.Header().Name)) {
			return fmt.Errorf("%w: %s not in zone %s", ErrZoneNotFound, rr.Header().Name, zone)
		}
	}

	msg := new(dns.Msg)
	msg.SetUpdate(zone)
	// The message helpers rewrite class and TTL in place.
	if len(ch.Require) > 0 {
		msg.Used(copyRRs(ch.Require, 0))
	}
	if len(ch.Remove) > 0 {
		msg.Remove(copyRRs(ch.Remove, 0))
	}
	if len(ch.Insert) > 0 {
		msg.Insert(copyRRs(ch.Insert, -1))
	}

	c.logger.Debug("sending DNS update",
		slog.String("zone", zone),
		slog.Int("require", len(ch.Require)),
		slog.Int("remove", len(ch.Remove)),
		slog.Int("insert", len(ch.Insert)),
	)

	resp, _, err := c.exchange(ctx, msg)
	if err != nil {
		return err
	}
	return checkResponse(zone, resp)
}

// copyRRs deep-copies rrs, setting the TTL when ttl is not negative.
func copyRRs(rrs []dns.RR, ttl int64) []dns.RR {
	out := make([]dns.RR, len(rrs))
	for i, rr := range rrs {
		out[i] = dns.Copy(rr)
		if ttl >= 0 {
			out[i].Header().Ttl = uint32(ttl)
		}
	}
	return out
}

// Query returns the records of name and type the server answers with.
// A name that does not exist yields no records.
func (c *Client) Query(ctx context.Context, name string, rrtype uint16) ([]dns.RR, error) {
	fqdn := dns.CanonicalName(name)

	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, rrtype)
	msg.RecursionDesired = false

	resp, _, err := c.exchange(ctx, msg)
	if err != nil {
		return nil, err
	}

	switch resp.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	case dns.RcodeNotAuth, dns.RcodeRefused:
		return nil, fmt.Errorf("%w: query for %s refused (%s)", ErrZoneNotFound, fqdn, dns.RcodeToString[resp.Rcode])
	default:
		return nil, fmt.Errorf("dns query for %s returned %s", fqdn, dns.RcodeToString[resp.Rcode])
	}

	var out []dns.RR
	for _, rr := range resp.Answer {
		hdr := rr.Header()
		if hdr.Rrtype == rrtype && dns.CanonicalName(hdr.Name) == fqdn {
			out = append(out, rr)
		}
	}
	return out, nil
}

// Transfer retrieves every record of zone by AXFR. The SOA that opens and
// closes the transfer is included once.
func (c *Client) Transfer(ctx context.Context, zone string) ([]dns.RR, error) {
	zone = dns.CanonicalName(zone)
	if _, err := c.SOA(ctx, zone); err != nil {
		return nil, err
	}

	transfer := &dns.Transfer{
		DialTimeout:  c.config.GetTimeout(),
		ReadTimeout:  c.config.GetTimeout(),
		WriteTimeout: c.config.GetTimeout(),
		TsigSecret:   c.tsig.secrets(),
	}

	msg := new(dns.Msg)
	msg.SetAxfr(zone)
	c.tsig.Sign(msg)

	c.logger.Debug("initiating AXFR zone transfer",
		slog.String("server", c.Server()),
		slog.String("zone", zone),
	)

	env, err := transfer.In(msg, c.Server())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAXFRFailed, err)
	}

	var records []dns.RR
	seenSOA := false
	for {
		select {
		case <-ctx.Done():
			drain(env)
			return nil, ctx.Err()
		case e, ok := <-env:
			if !ok {
				c.logger.Debug("AXFR zone transfer complete",
					slog.String("zone", zone),
					slog.Int("records", len(records)),
				)
				return records, nil
			}
			if e.Error != nil {
				drain(env)
				return nil, fmt.Errorf("%w: %w", ErrAXFRFailed, e.Error)
			}
			for _, rr := range e.RR {
				if rr.Header().Rrtype == dns.TypeSOA {
					if seenSOA {
						continue
					}
					seenSOA = true
				}
				records = append(records, rr)
			}
		}
	}
}

// exchange sends msg, signing it when a TSIG key is configured.
func (c *Client) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	c.tsig.Sign(msg)
	resp, rtt, err := c.dnsClient.ExchangeContext(ctx, msg, c.Server())
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if resp == nil {
		return nil, 0, fmt.Errorf("%w: no response from server", ErrConnectionFailed)
	}
	return resp, rtt, nil
}

// checkResponse maps the rcode of an UPDATE response.
func checkResponse(zone string, resp *dns.Msg) error {
	switch resp.Rcode {
	case dns.RcodeSuccess:
		return nil

	case dns.RcodeNotAuth:
		// Server is not authoritative or TSIG failed
		if resp.IsTsig() != nil {
			return fmt.Errorf("%w: %s", ErrAuthenticationFailed, dns.RcodeToString[resp.Rcode])
		}
		return fmt.Errorf("%w: %s", ErrZoneNotFound, zone)

	case dns.RcodeRefused:
		// Server refused the update (policy or TSIG)
		return fmt.Errorf("%w: update refused (check server policy or TSIG configuration)", ErrAuthenticationFailed)

	case dns.RcodeNotZone:
		return fmt.Errorf("%w: %s", ErrZoneNotFound, zone)

	case dns.RcodeNXRrset:
		return fmt.Errorf("%w: %s", ErrPrerequisiteFailed, zone)

	case dns.RcodeServerFailure:
		return fmt.Errorf("%w: %w: %s", ErrUpdateFailed, provider.ErrProviderUnavailable, dns.RcodeToString[resp.Rcode])

	default:
		return fmt.Errorf("%w: %s", ErrUpdateFailed, dns.RcodeToString[resp.Rcode])
	}
}

// drain discards the rest of a transfer so its goroutine can exit.
func drain(env chan *dns.Envelope) {
	go func() {
		for range env {
		}
	}()
}
