// Package partition keeps geo region claims exclusive between the qualified
// variants of one name and type.
//
// After a geo record set is written, every sibling qualifier loses the
// (region, territory) pairs the new claim holds. The newest write always
// wins; siblings are only narrowed, never removed.
package partition

import (
	"context"
	"fmt"
	"log/slog"

	"gitlab.bluewillows.net/root/zoneweaver/internal/metrics"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Store is the slice of a geo backend the partitioner reads and writes.
type Store interface {
	// Qualifiers lists every qualifier stored for name and type.
	Qualifiers(ctx context.Context, zone, name, typ string) ([]string, error)

	// Profile returns the stored profile of key, or provider.ErrNotFound.
	Profile(ctx context.Context, zone string, key rrset.Key) (rrset.Profile, error)

	// ReplaceProfile stores p for key, leaving its records untouched.
	ReplaceProfile(ctx context.Context, zone string, key rrset.Key, p rrset.Profile) error
}

// Rewrite describes one narrowed sibling.
type Rewrite struct {
	Key    rrset.Key
	Before rrset.Regions
	After  rrset.Regions
}

func (r Rewrite) String() string {
	return fmt.Sprintf("%s: %s -> %s", r.Key, r.Before, r.After)
}

// Partitioner narrows sibling claims after a geo write.
type Partitioner struct {
	name   string
	store  Store
	dryRun bool
	logger *slog.Logger
}

// Option configures a Partitioner.
type Option func(*Partitioner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Partitioner) {
		p.logger = logger
	}
}

// WithDryRun computes rewrites without storing them.
func WithDryRun(dryRun bool) Option {
	return func(p *Partitioner) {
		p.dryRun = dryRun
	}
}

// New returns a Partitioner for the named provider.
func New(name string, store Store, opts ...Option) *Partitioner {
	p := &Partitioner{
		name:   name,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Partition removes the claim of written from every other qualifier of the
// same name and type. The caller must hold the group lock for written's
// (zone, name, type) for the whole call, see KeyedMutex.
//
// Siblings without a stored profile, or with a non-geo profile, are left
// alone. A sibling whose claim does not change is not rewritten.
func (p *Partitioner) Partition(ctx context.Context, zone string, written rrset.RecordSet) ([]Rewrite, error) {
	claim := rrset.GeoRegions(written.Profile)
	if claim == nil {
		return nil, &rrset.ArgumentError{Field: "profile", Message: "partitioning requires a geo profile"}
	}
	if written.Qualifier == "" {
		return nil, &rrset.ArgumentError{Field: "qualifier", Message: "required"}
	}

	self := written.Key()
	qualifiers, err := p.store.Qualifiers(ctx, zone, self.Name, self.Type)
	if err != nil {
		return nil, fmt.Errorf("listing qualifiers of %s: %w", self.Group(), err)
	}

	var rewrites []Rewrite
	for _, q := range qualifiers {
		if q == self.Qualifier {
			continue
		}
		key := rrset.NewKey(self.Name, self.Type, q)

		current, err := p.store.Profile(ctx, zone, key)
		if provider.IsNotFound(err) {
			continue
		}
		if err != nil {
			return rewrites, fmt.Errorf("reading profile of %s: %w", key, err)
		}
		before := rrset.GeoRegions(current)
		if before == nil {
			continue
		}

		after := before.Without(claim)
		if after.Equal(before) {
			continue
		}

		rw := Rewrite{Key: key, Before: before.Normalize(), After: after}
		if p.dryRun {
			p.logger.Info("would narrow sibling claim",
				slog.String("provider", p.name),
				slog.String("key", key.String()),
				slog.String("before", rw.Before.String()),
				slog.String("after", rw.After.String()),
			)
			rewrites = append(rewrites, rw)
			continue
		}

		if err := p.store.ReplaceProfile(ctx, zone, key, &rrset.Geo{Regions: after}); err != nil {
			return rewrites, fmt.Errorf("narrowing %s: %w", key, err)
		}
		metrics.PartitionRewrites.WithLabelValues(p.name).Inc()
		p.logger.Info("narrowed sibling claim",
			slog.String("provider", p.name),
			slog.String("key", key.String()),
			slog.String("before", rw.Before.String()),
			slog.String("after", rw.After.String()),
		)
		rewrites = append(rewrites, rw)
	}
	return rewrites, nil
}
