// Package memory implements an in-process DNS provider.
//
// Records live in three namespaces per zone: basic records, and the geo and
// weighted profile namespaces exposed through ProfileBackends. A single mutex
// guards all zones; every exported method takes it for its full duration and
// never calls back into callers while holding it.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// TypeName is the provider type used in configuration.
const TypeName = "memory"

// DefaultPageSize is the listing page size when none is configured.
const DefaultPageSize = 100

type namespace string

const (
	nsBasic    namespace = "basic"
	nsGeo      namespace = "geo"
	nsWeighted namespace = "weighted"
)

type zoneData struct {
	records  map[namespace]map[string]provider.Record
	profiles map[namespace]map[rrset.Key]rrset.Profile
}

func newZoneData() *zoneData {
	z := &zoneData{
		records:  make(map[namespace]map[string]provider.Record),
		profiles: make(map[namespace]map[rrset.Key]rrset.Profile),
	}
	for _, ns := range []namespace{nsBasic, nsGeo, nsWeighted} {
		z.records[ns] = make(map[string]provider.Record)
		z.profiles[ns] = make(map[rrset.Key]rrset.Profile)
	}
	return z
}

// Provider is an in-memory DNS provider.
type Provider struct {
	name     string
	pageSize int
	regions  rrset.Regions
	weights  []int
	logger   *slog.Logger

	mu    sync.Mutex
	zones map[string]*zoneData
	ops   []string
	jobs  jobTable

	geo      *GeoBackend
	weighted *WeightedBackend
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

// WithPageSize sets the number of records returned per List page.
func WithPageSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithZones creates the named zones up front.
func WithZones(zones ...string) Option {
	return func(p *Provider) {
		for _, z := range zones {
			p.zones[rrset.CanonicalName(z)] = newZoneData()
		}
	}
}

// WithRegions overrides the regions the geo backend accepts.
func WithRegions(r rrset.Regions) Option {
	return func(p *Provider) {
		p.regions = r.Normalize()
	}
}

// WithWeights overrides the weights the weighted backend accepts.
func WithWeights(weights ...int) Option {
	return func(p *Provider) {
		p.weights = slices.Clone(weights)
	}
}

// WithAsyncJobs makes every write return a pending job that reports
// running for polls status queries before completing.
func WithAsyncJobs(polls int) Option {
	return func(p *Provider) {
		p.jobs.async = true
		p.jobs.polls = polls
	}
}

// DefaultRegions is the geo claim space accepted unless overridden.
func DefaultRegions() rrset.Regions {
	return rrset.Regions{
		"US": {"CA", "FL", "IL", "NY", "TX", "WA"},
		"EU": {"DE", "ES", "FR", "GB", "IT", "NL"},
		"AP": {"AU", "IN", "JP", "SG"},
	}.Normalize()
}

// DefaultWeights returns the weights accepted unless overridden: 0 to 100.
func DefaultWeights() []int {
	w := make([]int, 101)
	for i := range w {
		w[i] = i
	}
	return w
}

// New creates an in-memory provider.
func New(name string, opts ...Option) *Provider {
	p := &Provider{
		name:     name,
		pageSize: DefaultPageSize,
		regions:  DefaultRegions(),
		weights:  DefaultWeights(),
		logger:   slog.Default(),
		zones:    make(map[string]*zoneData),
		jobs:     jobTable{jobs: make(map[string]*jobEntry)},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.geo = &GeoBackend{backend{p: p, ns: nsGeo, kind: rrset.KindGeo}}
	p.weighted = &WeightedBackend{backend{p: p, ns: nsWeighted, kind: rrset.KindWeighted}}
	return p
}

// Name returns the provider instance name.
func (p *Provider) Name() string { return p.name }

// Type returns "memory".
func (p *Provider) Type() string { return TypeName }

// Ping always succeeds.
func (p *Provider) Ping(ctx context.Context) error { return ctx.Err() }

// Capabilities reports a sorted listing of every record type.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{SortedListing: true}
}

// CreateZone adds an empty zone. Creating an existing zone is a no-op.
func (p *Provider) CreateZone(zone string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := rrset.CanonicalName(zone)
	if _, ok := p.zones[key]; !ok {
		p.zones[key] = newZoneData()
	}
}

// DeleteZone drops a zone and everything in it.
func (p *Provider) DeleteZone(zone string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.zones, rrset.CanonicalName(zone))
}

// Zones returns the zone names in sorted order.
func (p *Provider) Zones() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.zones))
	for z := range p.zones {
		out = append(out, z)
	}
	sort.Strings(out)
	return out
}

// Operations returns the log of writes issued so far, e.g.
// "create basic www.example.com./A 1.1.1.1".
func (p *Provider) Operations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.ops)
}

// ResetOperations clears the write log.
func (p *Provider) ResetOperations() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = nil
}

// FailNextJob makes the next write's job end in the error state with msg.
// The write is not applied. Only meaningful with WithAsyncJobs.
func (p *Provider) FailNextJob(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs.failNext = msg
}

// List returns one page of basic records.
func (p *Provider) List(ctx context.Context, zone, cursor string) (provider.Page, error) {
	return p.list(ctx, nsBasic, zone, cursor)
}

// ListByNameAndType returns every basic record of name and type in one page.
func (p *Provider) ListByNameAndType(ctx context.Context, zone, name, typ, cursor string) (provider.Page, error) {
	return p.listByNameAndType(ctx, nsBasic, zone, name, typ, cursor)
}

// Create adds a basic record.
func (p *Provider) Create(ctx context.Context, zone string, rec provider.Record) (*provider.Job, error) {
	if rec.Qualifier != "" {
		return nil, fmt.Errorf("basic records cannot carry qualifier %q", rec.Qualifier)
	}
	return p.create(ctx, nsBasic, zone, rec)
}

// Update changes the TTL and data of a basic record.
func (p *Provider) Update(ctx context.Context, zone, id string, ttl int, data string) (*provider.Job, error) {
	return p.update(ctx, nsBasic, zone, id, ttl, data)
}

// Delete removes a basic record.
func (p *Provider) Delete(ctx context.Context, zone, id string) (*provider.Job, error) {
	return p.remove(ctx, nsBasic, zone, id)
}

// JobStatus reports the state of a job issued by any namespace.
func (p *Provider) JobStatus(ctx context.Context, id string) (provider.Job, error) {
	if err := ctx.Err(); err != nil {
		return provider.Job{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobs.status(id)
}

// ProfileBackends returns the geo and weighted namespaces.
func (p *Provider) ProfileBackends() []provider.ProfileBackend {
	return []provider.ProfileBackend{p.geo, p.weighted}
}

// Geo returns the geo namespace.
func (p *Provider) Geo() *GeoBackend { return p.geo }

// Weighted returns the weighted namespace.
func (p *Provider) Weighted() *WeightedBackend { return p.weighted }

func (p *Provider) zone(zone string) (*zoneData, error) {
	z, ok := p.zones[rrset.CanonicalName(zone)]
	if !ok {
		return nil, fmt.Errorf("zone %s: %w", zone, provider.ErrNotFound)
	}
	return z, nil
}

func (p *Provider) sorted(ns namespace, z *zoneData, keep func(provider.Record) bool) []provider.Record {
	out := make([]provider.Record, 0, len(z.records[ns]))
	for _, r := range z.records[ns] {
		if keep == nil || keep(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, provider.CompareRecords)
	return out
}

func (p *Provider) list(ctx context.Context, ns namespace, zone, cursor string) (provider.Page, error) {
	if err := ctx.Err(); err != nil {
		return provider.Page{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	z, err := p.zone(zone)
	if err != nil {
		return provider.Page{}, err
	}
	offset := 0
	if cursor != "" {
		offset, err = strconv.Atoi(cursor)
		if err != nil || offset < 0 {
			return provider.Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
	}

	all := p.sorted(ns, z, nil)
	if offset > len(all) {
		offset = len(all)
	}
	end := min(offset+p.pageSize, len(all))
	page := provider.Page{Records: all[offset:end]}
	if end < len(all) {
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

func (p *Provider) listByNameAndType(ctx context.Context, ns namespace, zone, name, typ, cursor string) (provider.Page, error) {
	if err := ctx.Err(); err != nil {
		return provider.Page{}, err
	}
	if cursor != "" {
		return provider.Page{}, fmt.Errorf("invalid cursor %q", cursor)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	z, err := p.zone(zone)
	if err != nil {
		return provider.Page{}, err
	}
	group := rrset.NewKey(name, typ, "")
	records := p.sorted(ns, z, func(r provider.Record) bool {
		return r.Key().Group() == group
	})
	return provider.Page{Records: records}, nil
}

func (p *Provider) create(ctx context.Context, ns namespace, zone string, rec provider.Record) (*provider.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	z, err := p.zone(zone)
	if err != nil {
		return nil, err
	}
	rec.ID = uuid.NewString()
	rec.Name = rrset.CanonicalName(rec.Name)
	p.logOp(fmt.Sprintf("create %s %s %s", ns, rec.Key(), rec.Data))
	return p.jobs.issue(func() { z.records[ns][rec.ID] = rec }), nil
}

func (p *Provider) update(ctx context.Context, ns namespace, zone, id string, ttl int, data string) (*provider.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	z, err := p.zone(zone)
	if err != nil {
		return nil, err
	}
	rec, ok := z.records[ns][id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, provider.ErrNotFound)
	}
	p.logOp(fmt.Sprintf("update %s %s ttl=%d", ns, rec.Key(), ttl))
	return p.jobs.issue(func() {
		rec.TTL = ttl
		rec.Data = data
		z.records[ns][id] = rec
	}), nil
}

func (p *Provider) remove(ctx context.Context, ns namespace, zone, id string) (*provider.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	z, err := p.zone(zone)
	if err != nil {
		return nil, err
	}
	rec, ok := z.records[ns][id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, provider.ErrNotFound)
	}
	p.logOp(fmt.Sprintf("delete %s %s %s", ns, rec.Key(), rec.Data))
	return p.jobs.issue(func() { delete(z.records[ns], id) }), nil
}

// logOp records a write in the operations log. Callers hold p.mu.
func (p *Provider) logOp(op string) {
	p.ops = append(p.ops, op)
	p.logger.Debug("memory write", slog.String("provider", p.name), slog.String("op", op))
}
