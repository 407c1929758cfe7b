package rrapi

import (
	"context"
	"log/slog"
	"time"

	"gitlab.bluewillows.net/root/zoneweaver/internal/metrics"
	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/internal/stream"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Basic serves unqualified record sets, one per name and type.
type Basic struct {
	name   string
	list   lister
	rec    *reconciler.Reconciler
	logger *slog.Logger
}

// NewBasic returns the basic API of store. name identifies the provider
// instance in logs and metrics.
func NewBasic(name string, store provider.RecordStore, opts ...Option) *Basic {
	o := buildOptions(opts)
	return &Basic{
		name: name,
		list: lister{name: name, store: store},
		rec: reconciler.New(name, store,
			reconciler.WithLogger(o.logger),
			reconciler.WithConfig(o.reconciler),
		),
		logger: o.logger.With(slog.String("provider", name)),
	}
}

// Iterate lists every record set in zone.
func (b *Basic) Iterate(zone string) stream.SetIterator {
	return stream.NewGrouper(b.list.all(zone), stream.ByNameAndType)
}

// IterateByName lists the record sets of one name, any type.
func (b *Basic) IterateByName(zone, name string) stream.SetIterator {
	if err := validateName(name); err != nil {
		return stream.Failed(err)
	}
	return stream.NewGrouper(b.list.byName(zone, name), stream.ByNameAndType)
}

// IterateByNameAndType lists at most one record set.
func (b *Basic) IterateByNameAndType(zone, name, typ string) stream.SetIterator {
	if err := rrset.ValidateQuery(name, typ); err != nil {
		return stream.Failed(err)
	}
	return stream.NewGrouper(b.list.byNameAndType(zone, name, typ), stream.ByNameAndType)
}

// GetByNameAndType returns the record set of name and type, if present.
func (b *Basic) GetByNameAndType(ctx context.Context, zone, name, typ string) (rrset.RecordSet, bool, error) {
	return firstSet(ctx, b.IterateByNameAndType(zone, name, typ))
}

// Put makes the stored records of set's name and type equal set.
func (b *Basic) Put(ctx context.Context, zone string, set rrset.RecordSet) (*reconciler.Result, error) {
	if set.Profile != nil {
		return nil, &rrset.UnsupportedProfileError{Kinds: []rrset.Kind{set.Profile.Kind()}}
	}
	if err := set.ValidateForWrite(); err != nil {
		return nil, err
	}

	start := time.Now()
	key := set.Key()
	result, err := b.rec.Reconcile(ctx, zone, set, b.list.byKey(zone, key))
	metrics.PutDuration.WithLabelValues(b.name, "none").Observe(time.Since(start).Seconds())
	return result, err
}

// DeleteByNameAndType removes every record of name and type.
func (b *Basic) DeleteByNameAndType(ctx context.Context, zone, name, typ string) (*reconciler.Result, error) {
	if err := rrset.ValidateQuery(name, typ); err != nil {
		return nil, err
	}
	key := rrset.NewKey(name, typ, "")
	b.logger.Debug("deleting record set", slog.String("zone", zone), slog.String("key", key.String()))
	return b.rec.DeleteAll(ctx, zone, b.list.byKey(zone, key))
}
