// Package sqlite implements a DNS provider persisted in a local sqlite
// database through gorm.
//
// Records are stored flat in one table and split into namespaces: basic
// records, plus the geo and weighted namespaces exposed through
// ProfileBackends. Listings are ordered by name, type, qualifier, priority,
// data and id, and paginated with offset cursors.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// TypeName is the provider type used in configuration.
const TypeName = "sqlite"

// DefaultPageSize is the listing page size when none is configured.
const DefaultPageSize = 100

const (
	nsBasic    = "basic"
	nsGeo      = "geo"
	nsWeighted = "weighted"
)

// listingOrder matches provider.CompareRecords. NULL priorities sort first.
const listingOrder = "name ASC, type ASC, qualifier ASC, priority ASC, data ASC, id ASC"

// Provider is a sqlite-backed DNS provider.
type Provider struct {
	name     string
	db       *gorm.DB
	pageSize int
	regions  rrset.Regions
	weights  []int
	logger   *slog.Logger

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

// WithRegions restricts the claims the geo backend accepts. Unset means any.
func WithRegions(r rrset.Regions) Option {
	return func(p *Provider) {
		p.regions = r.Normalize()
	}
}

// WithWeights restricts the weights the weighted backend accepts. Unset means any.
func WithWeights(weights ...int) Option {
	return func(p *Provider) {
		p.weights = append([]int(nil), weights...)
	}
}

// New creates a provider over an opened database. See Open.
func New(name string, db *gorm.DB, opts ...Option) *Provider {
	p := &Provider{
		name:     name,
		db:       db,
		pageSize: DefaultPageSize,
		logger:   slog.Default(),
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

// Type returns "sqlite".
func (p *Provider) Type() string { return TypeName }

// Ping checks the database connection.
func (p *Provider) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	return nil
}

// Close closes the database.
func (p *Provider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Capabilities reports a sorted listing of every record type.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{SortedListing: true}
}

// CreateZone adds an empty zone. Creating an existing zone is a no-op.
func (p *Provider) CreateZone(ctx context.Context, zone string) error {
	row := zoneRow{Name: rrset.CanonicalName(zone)}
	if row.Name == "" {
		return fmt.Errorf("empty zone name")
	}
	return p.db.WithContext(ctx).Where(zoneRow{Name: row.Name}).FirstOrCreate(&row).Error
}

// DeleteZone drops a zone and everything in it.
func (p *Provider) DeleteZone(ctx context.Context, zone string) error {
	name := rrset.CanonicalName(zone)
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("zone = ?", name).Delete(&recordRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("zone = ?", name).Delete(&profileRow{}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).Delete(&zoneRow{}).Error
	})
}

// Zones returns the zone names in sorted order.
func (p *Provider) Zones(ctx context.Context) ([]string, error) {
	var names []string
	if err := p.db.WithContext(ctx).Model(&zoneRow{}).Order("name ASC").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

// List returns one page of basic records.
func (p *Provider) List(ctx context.Context, zone, cursor string) (provider.Page, error) {
	return p.list(ctx, nsBasic, zone, cursor, nil)
}

// ListByNameAndType returns one page of the basic records of name and type.
func (p *Provider) ListByNameAndType(ctx context.Context, zone, name, typ, cursor string) (provider.Page, error) {
	return p.list(ctx, nsBasic, zone, cursor, byNameAndType(name, typ))
}

// Create adds a basic record.
func (p *Provider) Create(ctx context.Context, zone string, rec provider.Record) (*provider.Job, error) {
	if rec.Qualifier != "" {
		return nil, fmt.Errorf("basic records cannot carry qualifier %q", rec.Qualifier)
	}
	return nil, p.create(ctx, nsBasic, zone, rec)
}

// Update changes the TTL and data of a basic record.
func (p *Provider) Update(ctx context.Context, zone, id string, ttl int, data string) (*provider.Job, error) {
	return nil, p.update(ctx, nsBasic, zone, id, ttl, data)
}

// Delete removes a basic record.
func (p *Provider) Delete(ctx context.Context, zone, id string) (*provider.Job, error) {
	return nil, p.remove(ctx, nsBasic, zone, id)
}

// ProfileBackends returns the geo and weighted namespaces.
func (p *Provider) ProfileBackends() []provider.ProfileBackend {
	return []provider.ProfileBackend{p.geo, p.weighted}
}

// Geo returns the geo namespace.
func (p *Provider) Geo() *GeoBackend { return p.geo }

// Weighted returns the weighted namespace.
func (p *Provider) Weighted() *WeightedBackend { return p.weighted }

func byNameAndType(name, typ string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("name = ? AND type = ?", rrset.CanonicalName(name), strings.ToUpper(typ))
	}
}

// zoneExists returns ErrNotFound for unknown zones.
func (p *Provider) zoneExists(tx *gorm.DB, zone string) error {
	var count int64
	if err := tx.Model(&zoneRow{}).Where("name = ?", zone).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("zone %s: %w", zone, provider.ErrNotFound)
	}
	return nil
}

func (p *Provider) list(ctx context.Context, ns, zone, cursor string, filter func(*gorm.DB) *gorm.DB) (provider.Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return provider.Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = n
	}
	zone = rrset.CanonicalName(zone)
	db := p.db.WithContext(ctx)
	if err := p.zoneExists(db, zone); err != nil {
		return provider.Page{}, err
	}

	q := db.Where("zone = ? AND namespace = ?", zone, ns)
	if filter != nil {
		q = q.Scopes(filter)
	}
	// One extra row tells whether another page follows.
	var rows []recordRow
	if err := q.Order(listingOrder).Offset(offset).Limit(p.pageSize + 1).Find(&rows).Error; err != nil {
		return provider.Page{}, fmt.Errorf("listing records: %w", err)
	}

	var page provider.Page
	if len(rows) > p.pageSize {
		rows = rows[:p.pageSize]
		page.Cursor = strconv.Itoa(offset + p.pageSize)
	}
	page.Records = make([]provider.Record, 0, len(rows))
	for i := range rows {
		page.Records = append(page.Records, rowToRecord(&rows[i]))
	}
	return page, nil
}

func (p *Provider) create(ctx context.Context, ns, zone string, rec provider.Record) error {
	zone = rrset.CanonicalName(zone)
	db := p.db.WithContext(ctx)
	if err := p.zoneExists(db, zone); err != nil {
		return err
	}
	row := &recordRow{
		ID:        uuid.NewString(),
		Zone:      zone,
		Namespace: ns,
		Name:      rrset.CanonicalName(rec.Name),
		Type:      strings.ToUpper(rec.Type),
		Qualifier: rec.Qualifier,
		TTL:       rec.TTL,
		Priority:  rec.Priority,
		Data:      rec.Data,
	}
	if err := db.Create(row).Error; err != nil {
		return fmt.Errorf("creating record: %w", err)
	}
	p.logger.Debug("sqlite write",
		slog.String("provider", p.name),
		slog.String("op", "create"),
		slog.String("namespace", ns),
		slog.String("key", rrset.NewKey(row.Name, row.Type, row.Qualifier).String()),
		slog.String("id", row.ID),
	)
	return nil
}

func (p *Provider) update(ctx context.Context, ns, zone, id string, ttl int, data string) error {
	zone = rrset.CanonicalName(zone)
	db := p.db.WithContext(ctx)
	if err := p.zoneExists(db, zone); err != nil {
		return err
	}
	res := db.Model(&recordRow{}).
		Where("id = ? AND zone = ? AND namespace = ?", id, zone, ns).
		Updates(map[string]any{"ttl": ttl, "data": data})
	if res.Error != nil {
		return fmt.Errorf("updating record %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("record %s: %w", id, provider.ErrNotFound)
	}
	p.logger.Debug("sqlite write",
		slog.String("provider", p.name),
		slog.String("op", "update"),
		slog.String("namespace", ns),
		slog.String("id", id),
		slog.Int("ttl", ttl),
	)
	return nil
}

func (p *Provider) remove(ctx context.Context, ns, zone, id string) error {
	zone = rrset.CanonicalName(zone)
	db := p.db.WithContext(ctx)
	if err := p.zoneExists(db, zone); err != nil {
		return err
	}
	res := db.Where("id = ? AND zone = ? AND namespace = ?", id, zone, ns).Delete(&recordRow{})
	if res.Error != nil {
		return fmt.Errorf("deleting record %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("record %s: %w", id, provider.ErrNotFound)
	}
	p.logger.Debug("sqlite write",
		slog.String("provider", p.name),
		slog.String("op", "delete"),
		slog.String("namespace", ns),
		slog.String("id", id),
	)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
