// Package cloudflare implements a zoneweaver provider for Cloudflare DNS.
//
// Records are listed page by page with page-number cursors. Cloudflare does
// not guarantee a listing order, so the provider reports an unsorted listing
// and the engine sorts before grouping.
package cloudflare

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// TypeName is the provider type used in configuration.
const TypeName = "cloudflare"

// supportedTypes lists the record types the adapter maps onto the API.
var supportedTypes = []string{"A", "AAAA", "CNAME", "MX", "NS", "SRV", "TXT"}

// Provider implements provider.Provider for Cloudflare DNS.
type Provider struct {
	name     string
	pageSize int
	proxied  bool
	client   *Client
	logger   *slog.Logger

	mu      sync.Mutex
	zoneIDs map[string]string // canonical zone name -> ID
}

// ProviderOption is a functional option for configuring the Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets a custom logger for the provider.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClient replaces the API client.
func WithClient(c *Client) ProviderOption {
	return func(p *Provider) {
		p.client = c
	}
}

// New creates a new Cloudflare provider instance.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:     name,
		pageSize: config.PageSize,
		proxied:  config.Proxied,
		logger:   slog.Default(),
		zoneIDs:  make(map[string]string, len(config.ZoneIDs)),
	}
	for zone, id := range config.ZoneIDs {
		p.zoneIDs[rrset.CanonicalName(zone)] = id
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		httpClient := httputil.NewClient(&httputil.ClientConfig{
			Timeout: config.Timeout,
			Retries: config.Retries,
			Logger:  p.logger,
		})
		p.client = NewClient(config.Token,
			WithAPIEndpoint(config.APIEndpoint),
			WithHTTPClient(httpClient),
			WithLogger(p.logger),
		)
	}

	return p, nil
}

// NewFromMap creates a new Cloudflare provider from a configuration map.
func NewFromMap(name string, config map[string]string, opts ...ProviderOption) (*Provider, error) {
	cfg, err := LoadConfigFromMap(name, config)
	if err != nil {
		return nil, err
	}
	return New(name, cfg, opts...)
}

// Factory returns a provider.Factory for use with the provider registry.
func Factory(logger *slog.Logger) provider.Factory {
	return func(name string, config map[string]string) (provider.Provider, error) {
		return NewFromMap(name, config, WithProviderLogger(logger))
	}
}

// Name returns the provider instance name.
func (p *Provider) Name() string { return p.name }

// Type returns "cloudflare".
func (p *Provider) Type() string { return TypeName }

// Ping checks connectivity to the Cloudflare API.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Capabilities reports an unsorted listing of the mapped record types.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportedRecordTypes: supportedTypes}
}

// zoneID resolves a zone name, looking it up once per zone.
func (p *Provider) zoneID(ctx context.Context, zone string) (string, error) {
	key := rrset.CanonicalName(zone)

	p.mu.Lock()
	id, ok := p.zoneIDs[key]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := p.client.LookupZoneID(ctx, apiName(key))
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.zoneIDs[key] = id
	p.mu.Unlock()
	return id, nil
}

// List returns one page of records. The cursor is the next page number.
func (p *Provider) List(ctx context.Context, zone, cursor string) (provider.Page, error) {
	return p.list(ctx, zone, cursor, recordFilter{})
}

// ListByNameAndType returns one page of the records of name and type.
func (p *Provider) ListByNameAndType(ctx context.Context, zone, name, typ, cursor string) (provider.Page, error) {
	return p.list(ctx, zone, cursor, recordFilter{Name: apiName(rrset.CanonicalName(name)), Type: strings.ToUpper(typ)})
}

func (p *Provider) list(ctx context.Context, zone, cursor string, filter recordFilter) (provider.Page, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return provider.Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		page = n
	}

	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return provider.Page{}, err
	}

	apiRecords, next, err := p.client.ListRecords(ctx, zoneID, page, p.pageSize, filter)
	if err != nil {
		return provider.Page{}, err
	}

	out := provider.Page{Records: make([]provider.Record, 0, len(apiRecords))}
	for _, r := range apiRecords {
		if !p.Capabilities().SupportsType(r.Type) {
			continue
		}
		out.Records = append(out.Records, fromAPI(r))
	}
	if next > 0 {
		out.Cursor = strconv.Itoa(next)
	}
	return out, nil
}

// Create adds a record.
func (p *Provider) Create(ctx context.Context, zone string, rec provider.Record) (*provider.Job, error) {
	if rec.Qualifier != "" {
		return nil, fmt.Errorf("cloudflare records cannot carry qualifier %q", rec.Qualifier)
	}
	if !p.Capabilities().SupportsType(rec.Type) {
		return nil, fmt.Errorf("record type %s is not supported by cloudflare", rec.Type)
	}
	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return nil, err
	}

	body := dnsRecord{
		Type:     strings.ToUpper(rec.Type),
		Name:     apiName(rec.Name),
		Content:  rec.Data,
		TTL:      rec.TTL,
		Priority: rec.Priority,
	}
	if proxiable(body.Type) {
		body.Proxied = &p.proxied
	}
	if _, err := p.client.CreateRecord(ctx, zoneID, body); err != nil {
		return nil, err
	}
	return nil, nil
}

// Update changes the TTL and data of a record.
func (p *Provider) Update(ctx context.Context, zone, id string, ttl int, data string) (*provider.Job, error) {
	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return nil, err
	}
	return nil, p.client.PatchRecord(ctx, zoneID, id, ttl, data)
}

// Delete removes a record by ID.
func (p *Provider) Delete(ctx context.Context, zone, id string) (*provider.Job, error) {
	zoneID, err := p.zoneID(ctx, zone)
	if err != nil {
		return nil, err
	}
	return nil, p.client.DeleteRecord(ctx, zoneID, id)
}

// fromAPI converts an API record. Cloudflare strips trailing dots from
// names in content; they are restored so values compare equal to the
// fully qualified names the codecs produce.
func fromAPI(r dnsRecord) provider.Record {
	typ := strings.ToUpper(r.Type)
	data := r.Content
	switch typ {
	case "CNAME", "NS", "MX":
		data = dns.Fqdn(data)
	case "SRV":
		// weight port target
		if fields := strings.Fields(data); len(fields) == 3 {
			fields[2] = dns.Fqdn(fields[2])
			data = strings.Join(fields, " ")
		}
	}
	return provider.Record{
		ID:       r.ID,
		Name:     rrset.CanonicalName(r.Name),
		Type:     typ,
		TTL:      r.TTL,
		Priority: r.Priority,
		Data:     data,
	}
}

// apiName strips the trailing dot the API does not use.
func apiName(name string) string {
	return strings.TrimSuffix(name, ".")
}

func proxiable(typ string) bool {
	return typ == "A" || typ == "AAAA" || typ == "CNAME"
}

// Ensure Provider implements the provider interfaces at compile time.
var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.NameTypeLister = (*Provider)(nil)
)
