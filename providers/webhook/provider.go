// Package webhook implements the zoneweaver provider interface for webhook-based DNS integrations.
//
// The endpoint stores flat records per zone and may complete writes
// asynchronously: a 202 response carries a job ID that is polled through
// GET /jobs/{id} until it reaches a terminal state.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/httputil"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// TypeName is the provider type used in configuration.
const TypeName = "webhook"

// Provider implements provider.Provider for webhook-based DNS.
type Provider struct {
	name       string
	client     *Client
	httpClient *http.Client // Custom HTTP client (optional)
	caps       provider.Capabilities
	logger     *slog.Logger
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

// WithProviderHTTPClient sets a custom HTTP client for the provider,
// replacing the retrying client built from the configuration.
func WithProviderHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// New creates a new webhook provider instance.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name: name,
		caps: provider.Capabilities{
			SortedListing:        config.SortedListing,
			SupportedRecordTypes: config.Types,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.httpClient == nil {
		p.httpClient = httputil.NewClient(&httputil.ClientConfig{
			Timeout:        config.Timeout,
			Retries:        config.Retries,
			RetryBaseDelay: config.RetryDelay,
			Logger:         p.logger,
		})
	}
	p.client = NewClient(
		config.URL,
		config.Timeout,
		config.AuthHeader,
		config.AuthToken,
		WithLogger(p.logger),
		WithHTTPClient(p.httpClient),
	)

	return p, nil
}

// NewFromMap creates a new webhook provider from a configuration map.
// This is used by the provider registry Factory pattern.
func NewFromMap(name string, config map[string]string, opts ...ProviderOption) (*Provider, error) {
	cfg, err := LoadConfigFromMap(name, config)
	if err != nil {
		return nil, err
	}
	return New(name, cfg, opts...)
}

// Name returns the provider instance name.
func (p *Provider) Name() string {
	return p.name
}

// Type returns "webhook".
func (p *Provider) Type() string {
	return TypeName
}

// Capabilities returns the listing order and record types declared in the
// configuration. The remote endpoint owns the actual DNS backend.
func (p *Provider) Capabilities() provider.Capabilities {
	return p.caps
}

// Ping checks connectivity to the webhook endpoint.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// List returns one page of records. The cursor is opaque and passed back
// to the endpoint unchanged.
func (p *Provider) List(ctx context.Context, zone, cursor string) (provider.Page, error) {
	return p.list(ctx, zone, cursor, ListFilter{})
}

// ListByNameAndType returns one page of the records of name and type.
func (p *Provider) ListByNameAndType(ctx context.Context, zone, name, typ, cursor string) (provider.Page, error) {
	return p.list(ctx, zone, cursor, ListFilter{Name: rrset.CanonicalName(name), Type: strings.ToUpper(typ)})
}

func (p *Provider) list(ctx context.Context, zone, cursor string, filter ListFilter) (provider.Page, error) {
	resp, err := p.client.List(ctx, rrset.CanonicalName(zone), cursor, filter)
	if err != nil {
		return provider.Page{}, fmt.Errorf("listing records: %w", err)
	}

	page := provider.Page{
		Records: make([]provider.Record, 0, len(resp.Records)),
		Cursor:  resp.NextCursor,
	}
	for _, r := range resp.Records {
		if !p.caps.SupportsType(r.Type) {
			continue
		}
		page.Records = append(page.Records, provider.Record{
			ID:        r.ID,
			Name:      rrset.CanonicalName(r.Name),
			Type:      strings.ToUpper(r.Type),
			Qualifier: r.Qualifier,
			TTL:       r.TTL,
			Priority:  r.Priority,
			Data:      r.Data,
		})
	}
	return page, nil
}

// Create adds a new DNS record via the webhook.
func (p *Provider) Create(ctx context.Context, zone string, rec provider.Record) (*provider.Job, error) {
	if rec.Qualifier != "" {
		return nil, fmt.Errorf("webhook records cannot carry qualifier %q", rec.Qualifier)
	}
	if !p.caps.SupportsType(rec.Type) {
		return nil, fmt.Errorf("record type %s is not accepted by webhook %s", rec.Type, p.name)
	}

	resp, err := p.client.Create(ctx, rrset.CanonicalName(zone), RecordRequest{
		Name:     rrset.CanonicalName(rec.Name),
		Type:     strings.ToUpper(rec.Type),
		TTL:      rec.TTL,
		Priority: rec.Priority,
		Data:     rec.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s record: %w", rec.Type, err)
	}
	return jobFor(resp), nil
}

// Update modifies the TTL and data of an existing record via the webhook.
func (p *Provider) Update(ctx context.Context, zone, id string, ttl int, data string) (*provider.Job, error) {
	resp, err := p.client.Update(ctx, rrset.CanonicalName(zone), id, ttl, data)
	if err != nil {
		return nil, fmt.Errorf("updating record %s: %w", id, err)
	}
	return jobFor(resp), nil
}

// Delete removes a DNS record via the webhook.
func (p *Provider) Delete(ctx context.Context, zone, id string) (*provider.Job, error) {
	resp, err := p.client.Delete(ctx, rrset.CanonicalName(zone), id)
	if err != nil {
		return nil, fmt.Errorf("deleting record %s: %w", id, err)
	}
	return jobFor(resp), nil
}

// JobStatus reports the state of an asynchronous write.
func (p *Provider) JobStatus(ctx context.Context, id string) (provider.Job, error) {
	resp, err := p.client.Job(ctx, id)
	if err != nil {
		return provider.Job{}, err
	}

	state := provider.JobState(strings.ToLower(resp.State))
	switch state {
	case provider.JobPending, provider.JobRunning, provider.JobComplete, provider.JobError:
	default:
		return provider.Job{}, fmt.Errorf("job %s: unknown state %q", id, resp.State)
	}
	return provider.Job{ID: id, State: state, Message: resp.Message}, nil
}

// jobFor returns the pending job of a write accepted for later completion.
func jobFor(resp *WriteResponse) *provider.Job {
	if resp == nil || resp.Job == "" {
		return nil
	}
	return &provider.Job{ID: resp.Job, State: provider.JobPending}
}

// Ensure Provider implements the provider interfaces at compile time.
var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.NameTypeLister = (*Provider)(nil)
	_ provider.JobTracker     = (*Provider)(nil)
)
