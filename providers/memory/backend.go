package memory

import (
	"context"
	"fmt"
	"slices"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// backend is one profile namespace of a Provider.
type backend struct {
	p    *Provider
	ns   namespace
	kind rrset.Kind
}

func (b *backend) Capabilities() provider.Capabilities {
	return provider.Capabilities{SortedListing: true}
}

func (b *backend) ProfileKind() rrset.Kind { return b.kind }

func (b *backend) List(ctx context.Context, zone, cursor string) (provider.Page, error) {
	return b.p.list(ctx, b.ns, zone, cursor)
}

func (b *backend) ListByNameAndType(ctx context.Context, zone, name, typ, cursor string) (provider.Page, error) {
	return b.p.listByNameAndType(ctx, b.ns, zone, name, typ, cursor)
}

func (b *backend) Create(ctx context.Context, zone string, rec provider.Record) (*provider.Job, error) {
	if rec.Qualifier == "" {
		return nil, fmt.Errorf("%s records require a qualifier", b.kind)
	}
	return b.p.create(ctx, b.ns, zone, rec)
}

func (b *backend) Update(ctx context.Context, zone, id string, ttl int, data string) (*provider.Job, error) {
	return b.p.update(ctx, b.ns, zone, id, ttl, data)
}

func (b *backend) Delete(ctx context.Context, zone, id string) (*provider.Job, error) {
	return b.p.remove(ctx, b.ns, zone, id)
}

func (b *backend) JobStatus(ctx context.Context, id string) (provider.Job, error) {
	return b.p.JobStatus(ctx, id)
}

func (b *backend) Profile(ctx context.Context, zone string, key rrset.Key) (rrset.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.p.mu.Lock()
	defer b.p.mu.Unlock()

	z, err := b.p.zone(zone)
	if err != nil {
		return nil, err
	}
	prof, ok := z.profiles[b.ns][canonicalKey(key)]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", key, provider.ErrNotFound)
	}
	return prof.Clone(), nil
}

func (b *backend) SetProfile(ctx context.Context, zone string, key rrset.Key, prof rrset.Profile) (*provider.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if prof == nil || prof.Kind() != b.kind {
		return nil, &rrset.UnsupportedProfileError{Kinds: kindsOf(prof)}
	}
	b.p.mu.Lock()
	defer b.p.mu.Unlock()

	z, err := b.p.zone(zone)
	if err != nil {
		return nil, err
	}
	key = canonicalKey(key)
	stored := prof.Clone()
	b.p.logOp(fmt.Sprintf("profile %s %s %s", b.ns, key, stored))
	return b.p.jobs.issue(func() { z.profiles[b.ns][key] = stored }), nil
}

func (b *backend) DeleteProfile(ctx context.Context, zone string, key rrset.Key) (*provider.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.p.mu.Lock()
	defer b.p.mu.Unlock()

	z, err := b.p.zone(zone)
	if err != nil {
		return nil, err
	}
	key = canonicalKey(key)
	if _, ok := z.profiles[b.ns][key]; !ok {
		return nil, fmt.Errorf("profile %s: %w", key, provider.ErrNotFound)
	}
	b.p.logOp(fmt.Sprintf("unprofile %s %s", b.ns, key))
	return b.p.jobs.issue(func() { delete(z.profiles[b.ns], key) }), nil
}

// GeoBackend stores geo-qualified records and their region claims.
type GeoBackend struct {
	backend
}

// SupportedRegions returns the claimable regions.
func (g *GeoBackend) SupportedRegions() rrset.Regions {
	return g.p.regions.Clone()
}

// WeightedBackend stores weighted records and their weights.
type WeightedBackend struct {
	backend
}

// SupportedWeights returns the accepted weights in ascending order.
func (w *WeightedBackend) SupportedWeights() []int {
	out := slices.Clone(w.p.weights)
	slices.Sort(out)
	return out
}

func canonicalKey(k rrset.Key) rrset.Key {
	return rrset.NewKey(k.Name, k.Type, k.Qualifier)
}

func kindsOf(p rrset.Profile) []rrset.Kind {
	if p == nil {
		return nil
	}
	return []rrset.Kind{p.Kind()}
}
