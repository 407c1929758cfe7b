// Package rrapi exposes providers as record-set APIs.
//
// A Basic API serves unqualified record sets from a provider's flat records.
// A Profiled API serves the qualified record sets of one profile backend,
// storing routing profiles next to the records and, for geo, keeping region
// claims exclusive. A Router composes both behind one surface.
//
// Reads are lazy: Iterate* calls do no I/O until the returned iterator's
// Next is called, and every call re-reads from the provider.
package rrapi

import (
	"context"
	"log/slog"

	"gitlab.bluewillows.net/root/zoneweaver/internal/metrics"
	"gitlab.bluewillows.net/root/zoneweaver/internal/partition"
	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/internal/stream"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

type options struct {
	logger     *slog.Logger
	reconciler reconciler.Config
	locks      *partition.KeyedMutex
}

// Option configures an API.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithReconcilerConfig sets dry-run, default TTL and job polling.
func WithReconcilerConfig(cfg reconciler.Config) Option {
	return func(o *options) {
		o.reconciler = cfg
	}
}

// WithLocks shares a lock table between APIs writing the same zones.
func WithLocks(locks *partition.KeyedMutex) Option {
	return func(o *options) {
		o.locks = locks
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:     slog.Default(),
		reconciler: reconciler.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locks == nil {
		o.locks = &partition.KeyedMutex{}
	}
	return o
}

// lister turns a RecordStore's listing calls into record iterators that are
// contiguous by key, sorting client-side when the store does not.
type lister struct {
	name  string
	store provider.RecordStore
}

func (l lister) countPage(provider.Page) {
	metrics.PagesFetched.WithLabelValues(l.name).Inc()
}

func (l lister) ordered(it stream.RecordIterator) stream.RecordIterator {
	if l.store.Capabilities().SortedListing {
		return it
	}
	return stream.Sorted(it)
}

func (l lister) all(zone string) stream.RecordIterator {
	pager := stream.NewPager(func(ctx context.Context, cursor string) (provider.Page, error) {
		return l.store.List(ctx, zone, cursor)
	}, stream.WithPageHook(l.countPage))
	return l.ordered(pager)
}

func (l lister) byName(zone, name string) stream.RecordIterator {
	return stream.Filter(l.all(zone), func(r provider.Record) bool {
		return rrset.EqualNames(r.Name, name)
	})
}

func (l lister) byNameAndType(zone, name, typ string) stream.RecordIterator {
	group := rrset.NewKey(name, typ, "")
	ntl, ok := l.store.(provider.NameTypeLister)
	if !ok {
		return stream.Filter(l.all(zone), func(r provider.Record) bool {
			return r.Key().Group() == group
		})
	}
	pager := stream.NewPager(func(ctx context.Context, cursor string) (provider.Page, error) {
		return ntl.ListByNameAndType(ctx, zone, group.Name, group.Type, cursor)
	}, stream.WithPageHook(l.countPage))
	// Some servers match names loosely; keep only the exact group.
	return l.ordered(stream.Filter(pager, func(r provider.Record) bool {
		return r.Key().Group() == group
	}))
}

func (l lister) byKey(zone string, key rrset.Key) stream.RecordIterator {
	return stream.Filter(l.byNameAndType(zone, key.Name, key.Type), func(r provider.Record) bool {
		return r.Qualifier == key.Qualifier
	})
}

// firstSet returns the first set of it, if any.
func firstSet(ctx context.Context, it stream.SetIterator) (rrset.RecordSet, bool, error) {
	if it.Next(ctx) {
		return it.RecordSet(), true, nil
	}
	if err := it.Err(); err != nil {
		return rrset.RecordSet{}, false, err
	}
	return rrset.RecordSet{}, false, ctx.Err()
}

func validateName(name string) error {
	if name == "" {
		return &rrset.ArgumentError{Field: "name", Message: "required"}
	}
	return nil
}
