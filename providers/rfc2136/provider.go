package rfc2136

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/dnsupdate"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// TypeName is the provider type used in configuration.
const TypeName = "rfc2136"

// Provider manages records on an authoritative server through dynamic
// updates. Records are listed by zone transfer.
type Provider struct {
	name     string
	zones    []string
	pageSize int
	client   *dnsupdate.Client
	logger   *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates an RFC 2136 provider instance.
func New(name string, cfg *Config, opts ...Option) (*Provider, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:     name,
		pageSize: cfg.PageSize,
		logger:   slog.Default(),
	}
	if p.pageSize <= 0 {
		p.pageSize = DefaultPageSize
	}
	for _, z := range cfg.Zones {
		p.zones = append(p.zones, rrset.CanonicalName(z))
	}
	for _, opt := range opts {
		opt(p)
	}

	client, err := dnsupdate.NewClient(&cfg.Config, dnsupdate.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("creating dnsupdate client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name returns the provider instance name.
func (p *Provider) Name() string { return p.name }

// Type returns "rfc2136".
func (p *Provider) Type() string { return TypeName }

// Capabilities reports a sorted listing of the types dynamic updates can write.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SortedListing:        true,
		SupportedRecordTypes: dnsupdate.SupportedTypes(),
	}
}

// Ping checks that the server answers for every configured zone.
func (p *Provider) Ping(ctx context.Context) error {
	if len(p.zones) == 0 {
		return provider.WrapError(p.name, "ping", p.client.Ping(ctx, ""))
	}
	for _, zone := range p.zones {
		if err := p.client.Ping(ctx, zone); err != nil {
			return provider.WrapError(p.name, "ping", err)
		}
	}
	return nil
}

// List transfers zone and returns one page of its records. The SOA, the
// apex NS set and DNSSEC records belong to the server and are left out.
// The cursor is an offset into the sorted listing.
func (p *Provider) List(ctx context.Context, zone, cursor string) (provider.Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return provider.Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = n
	}

	zone = rrset.CanonicalName(zone)
	rrs, err := p.client.Transfer(ctx, zone)
	if err != nil {
		return provider.Page{}, provider.WrapError(p.name, "list", err)
	}

	all := make([]provider.Record, 0, len(rrs))
	for _, rr := range rrs {
		hdr := rr.Header()
		if !dnsupdate.Managed(hdr.Rrtype) {
			continue
		}
		if hdr.Rrtype == dns.TypeNS && dns.CanonicalName(hdr.Name) == zone {
			continue
		}
		rec, err := p.fromRR(rr)
		if err != nil {
			p.logger.Warn("skipping unreadable record",
				slog.String("provider", p.name),
				slog.String("record", rr.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		all = append(all, rec)
	}
	slices.SortFunc(all, provider.CompareRecords)

	offset = min(offset, len(all))
	end := min(offset+p.pageSize, len(all))
	page := provider.Page{Records: all[offset:end]}
	if end < len(all) {
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

// ListByNameAndType queries the server for one name and type.
func (p *Provider) ListByNameAndType(ctx context.Context, zone, name, typ, cursor string) (provider.Page, error) {
	if cursor != "" {
		return provider.Page{}, fmt.Errorf("invalid cursor %q", cursor)
	}
	rrtype, ok := dns.StringToType[strings.ToUpper(typ)]
	if !ok {
		return provider.Page{}, fmt.Errorf("unknown record type %q", typ)
	}
	zone = rrset.CanonicalName(zone)
	name = rrset.CanonicalName(name)
	if !dns.IsSubDomain(zone, name) {
		return provider.Page{}, fmt.Errorf("%s is not in zone %s", name, zone)
	}

	rrs, err := p.client.Query(ctx, name, rrtype)
	if err != nil {
		return provider.Page{}, provider.WrapError(p.name, "list", err)
	}

	records := make([]provider.Record, 0, len(rrs))
	for _, rr := range rrs {
		rec, err := p.fromRR(rr)
		if err != nil {
			return provider.Page{}, provider.WrapError(p.name, "list", err)
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, provider.CompareRecords)
	return provider.Page{Records: records}, nil
}

// Create inserts a record. Dynamic updates apply synchronously, so no job
// is returned.
func (p *Provider) Create(ctx context.Context, zone string, rec provider.Record) (*provider.Job, error) {
	if rec.Qualifier != "" {
		return nil, fmt.Errorf("basic records cannot carry qualifier %q", rec.Qualifier)
	}
	if !p.Capabilities().SupportsType(rec.Type) {
		return nil, fmt.Errorf("record type %s is not supported by %s", rec.Type, p.name)
	}

	rr, err := dnsupdate.ToRR(rec)
	if err != nil {
		return nil, err
	}
	if err := p.client.Update(ctx, zone, dnsupdate.Change{Insert: []dns.RR{rr}}); err != nil {
		return nil, provider.WrapError(p.name, "create", err)
	}

	p.logger.Debug("RFC 2136 record created",
		slog.String("provider", p.name),
		slog.String("record", rr.String()),
	)
	return nil, nil
}

// Update replaces the TTL and data of the record id names. The old record
// must still be on the server.
func (p *Provider) Update(ctx context.Context, zone, id string, ttl int, data string) (*provider.Job, error) {
	old, err := parseID(id)
	if err != nil {
		return nil, err
	}
	oldRR, err := dnsupdate.ToRR(old)
	if err != nil {
		return nil, err
	}

	rec := old
	rec.TTL = ttl
	rec.Data = data
	newRR, err := dnsupdate.ToRR(rec)
	if err != nil {
		return nil, err
	}

	err = p.client.Update(ctx, zone, dnsupdate.Change{
		Require: []dns.RR{oldRR},
		Remove:  []dns.RR{oldRR},
		Insert:  []dns.RR{newRR},
	})
	if err != nil {
		return nil, provider.WrapRecordError(p.name, "update", id, err)
	}

	p.logger.Debug("RFC 2136 record updated",
		slog.String("provider", p.name),
		slog.String("record", newRR.String()),
	)
	return nil, nil
}

// Delete removes the record id names.
func (p *Provider) Delete(ctx context.Context, zone, id string) (*provider.Job, error) {
	rec, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rr, err := dnsupdate.ToRR(rec)
	if err != nil {
		return nil, err
	}

	err = p.client.Update(ctx, zone, dnsupdate.Change{
		Require: []dns.RR{rr},
		Remove:  []dns.RR{rr},
	})
	if err != nil {
		return nil, provider.WrapRecordError(p.name, "delete", id, err)
	}

	p.logger.Debug("RFC 2136 record deleted",
		slog.String("provider", p.name),
		slog.String("record", rr.String()),
	)
	return nil, nil
}

func (p *Provider) fromRR(rr dns.RR) (provider.Record, error) {
	rec, err := dnsupdate.FromRR(rr)
	if err != nil {
		return provider.Record{}, err
	}
	rec.ID = recordID(rec)
	return rec, nil
}

// recordID identifies a record by its content. The TTL is left out so an
// update that only changes the TTL keeps the ID.
func recordID(rec provider.Record) string {
	priority := ""
	if rec.Priority != nil {
		priority = strconv.Itoa(*rec.Priority)
	}
	raw := strings.Join([]string{rec.Name, rec.Type, priority, rec.Data}, "\x00")
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func parseID(id string) (provider.Record, error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return provider.Record{}, fmt.Errorf("record %s: %w", id, provider.ErrNotFound)
	}
	parts := strings.SplitN(string(raw), "\x00", 4)
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" {
		return provider.Record{}, fmt.Errorf("record %s: %w", id, provider.ErrNotFound)
	}

	rec := provider.Record{ID: id, Name: parts[0], Type: parts[1], Data: parts[3]}
	if parts[2] != "" {
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return provider.Record{}, fmt.Errorf("record %s: %w", id, provider.ErrNotFound)
		}
		rec.Priority = &n
	}
	return rec, nil
}

// Compile-time interface checks.
var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.NameTypeLister = (*Provider)(nil)
)
