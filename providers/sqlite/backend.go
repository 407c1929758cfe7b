package sqlite

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm/clause"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// backend is one profile namespace of a Provider.
type backend struct {
	p    *Provider
	ns   string
	kind rrset.Kind
}

func (b *backend) Capabilities() provider.Capabilities {
	return provider.Capabilities{SortedListing: true}
}

func (b *backend) ProfileKind() rrset.Kind { return b.kind }

func (b *backend) List(ctx context.Context, zone, cursor string) (provider.Page, error) {
	return b.p.list(ctx, b.ns, zone, cursor, nil)
}

func (b *backend) ListByNameAndType(ctx context.Context, zone, name, typ, cursor string) (provider.Page, error) {
	return b.p.list(ctx, b.ns, zone, cursor, byNameAndType(name, typ))
}

func (b *backend) Create(ctx context.Context, zone string, rec provider.Record) (*provider.Job, error) {
	if rec.Qualifier == "" {
		return nil, fmt.Errorf("%s records require a qualifier", b.kind)
	}
	return nil, b.p.create(ctx, b.ns, zone, rec)
}

func (b *backend) Update(ctx context.Context, zone, id string, ttl int, data string) (*provider.Job, error) {
	return nil, b.p.update(ctx, b.ns, zone, id, ttl, data)
}

func (b *backend) Delete(ctx context.Context, zone, id string) (*provider.Job, error) {
	return nil, b.p.remove(ctx, b.ns, zone, id)
}

func (b *backend) profileWhere(zone string, key rrset.Key) profileRow {
	key = rrset.NewKey(key.Name, key.Type, key.Qualifier)
	return profileRow{
		Zone:      rrset.CanonicalName(zone),
		Namespace: b.ns,
		Name:      key.Name,
		Type:      key.Type,
		Qualifier: key.Qualifier,
	}
}

func (b *backend) Profile(ctx context.Context, zone string, key rrset.Key) (rrset.Profile, error) {
	db := b.p.db.WithContext(ctx)
	where := b.profileWhere(zone, key)
	if err := b.p.zoneExists(db, where.Zone); err != nil {
		return nil, err
	}
	var row profileRow
	if err := db.Where(where.conds()).First(&row).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("profile %s: %w", key, provider.ErrNotFound)
		}
		return nil, fmt.Errorf("reading profile %s: %w", key, err)
	}
	return rrset.UnmarshalProfile([]byte(row.Profile))
}

func (b *backend) SetProfile(ctx context.Context, zone string, key rrset.Key, prof rrset.Profile) (*provider.Job, error) {
	if prof == nil || prof.Kind() != b.kind {
		var kinds []rrset.Kind
		if prof != nil {
			kinds = []rrset.Kind{prof.Kind()}
		}
		return nil, &rrset.UnsupportedProfileError{Kinds: kinds}
	}
	data, err := rrset.MarshalProfile(prof)
	if err != nil {
		return nil, err
	}
	db := b.p.db.WithContext(ctx)
	row := b.profileWhere(zone, key)
	if err := b.p.zoneExists(db, row.Zone); err != nil {
		return nil, err
	}
	row.Profile = string(data)
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("storing profile %s: %w", key, err)
	}
	return nil, nil
}

func (b *backend) DeleteProfile(ctx context.Context, zone string, key rrset.Key) (*provider.Job, error) {
	db := b.p.db.WithContext(ctx)
	where := b.profileWhere(zone, key)
	if err := b.p.zoneExists(db, where.Zone); err != nil {
		return nil, err
	}
	res := db.Where(where.conds()).Delete(&profileRow{})
	if res.Error != nil {
		return nil, fmt.Errorf("deleting profile %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("profile %s: %w", key, provider.ErrNotFound)
	}
	return nil, nil
}

// GeoBackend stores geo-qualified records and their region claims.
type GeoBackend struct {
	backend
}

// SupportedRegions returns the configured claim space, or nil for any.
func (g *GeoBackend) SupportedRegions() rrset.Regions {
	return g.p.regions.Clone()
}

// WeightedBackend stores weighted records and their weights.
type WeightedBackend struct {
	backend
}

// SupportedWeights returns the configured weights in ascending order, or nil for any.
func (w *WeightedBackend) SupportedWeights() []int {
	out := slices.Clone(w.p.weights)
	slices.Sort(out)
	return out
}
