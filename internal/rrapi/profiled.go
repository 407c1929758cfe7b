package rrapi

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"gitlab.bluewillows.net/root/zoneweaver/internal/metrics"
	"gitlab.bluewillows.net/root/zoneweaver/internal/partition"
	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/internal/stream"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Profiled serves the qualified record sets of one profile backend.
//
// A geo put holds the (zone, name, type) lock for the base write, the
// profile write and the partition of sibling claims. Weighted puts take no
// lock; ordering writes to different qualifiers of one name and type is the
// caller's job.
type Profiled struct {
	name    string
	backend provider.ProfileBackend
	list    lister
	rec     *reconciler.Reconciler
	waiter  *reconciler.JobWaiter
	part    *partition.Partitioner
	locks   *partition.KeyedMutex
	dryRun  bool
	logger  *slog.Logger
}

// NewProfiled returns the API of one profile backend of the named provider.
func NewProfiled(name string, backend provider.ProfileBackend, opts ...Option) *Profiled {
	o := buildOptions(opts)
	var tracker provider.JobTracker
	if t, ok := backend.(provider.JobTracker); ok {
		tracker = t
	}

	p := &Profiled{
		name:    name,
		backend: backend,
		list:    lister{name: name, store: backend},
		rec: reconciler.New(name, backend,
			reconciler.WithLogger(o.logger),
			reconciler.WithConfig(o.reconciler),
		),
		waiter: reconciler.NewJobWaiter(name, tracker, o.reconciler.Job, o.logger),
		locks:  o.locks,
		dryRun: o.reconciler.DryRun,
		logger: o.logger.With(slog.String("provider", name), slog.String("profile", string(backend.ProfileKind()))),
	}
	if backend.ProfileKind() == rrset.KindGeo {
		p.part = partition.New(name, p, partition.WithLogger(o.logger), partition.WithDryRun(o.reconciler.DryRun))
	}
	return p
}

// Kind returns the profile kind served.
func (p *Profiled) Kind() rrset.Kind {
	return p.backend.ProfileKind()
}

// Supports reports whether every kind in kinds is served.
func (p *Profiled) Supports(kinds []rrset.Kind) bool {
	for _, k := range kinds {
		if k != p.Kind() {
			return false
		}
	}
	return len(kinds) > 0
}

// SupportsType reports whether the backend accepts records of typ.
func (p *Profiled) SupportsType(typ string) bool {
	return p.backend.Capabilities().SupportsType(typ)
}

// SupportedRegions returns the regions a geo backend serves, or nil.
func (p *Profiled) SupportedRegions() rrset.Regions {
	if rl, ok := p.backend.(provider.RegionLister); ok {
		return rl.SupportedRegions()
	}
	return nil
}

// SupportedWeights returns the weights a weighted backend accepts, or nil.
func (p *Profiled) SupportedWeights() []int {
	if wl, ok := p.backend.(provider.WeightLister); ok {
		return wl.SupportedWeights()
	}
	return nil
}

func (p *Profiled) withProfiles(zone string, it stream.SetIterator) stream.SetIterator {
	return stream.MapSets(it, func(ctx context.Context, set rrset.RecordSet) (rrset.RecordSet, error) {
		prof, err := p.backend.Profile(ctx, zone, set.Key())
		if provider.IsNotFound(err) {
			return set, nil
		}
		if err != nil {
			return set, fmt.Errorf("reading profile of %s: %w", set.Key(), err)
		}
		set.Profile = prof
		return set, nil
	})
}

// Iterate lists every qualified record set in zone with its profile.
func (p *Profiled) Iterate(zone string) stream.SetIterator {
	return p.withProfiles(zone, stream.NewGrouper(p.list.all(zone), stream.ByQualifier))
}

// IterateByName lists the qualified record sets of one name.
func (p *Profiled) IterateByName(zone, name string) stream.SetIterator {
	if err := validateName(name); err != nil {
		return stream.Failed(err)
	}
	return p.withProfiles(zone, stream.NewGrouper(p.list.byName(zone, name), stream.ByQualifier))
}

// IterateByNameAndType lists every qualifier of one name and type.
func (p *Profiled) IterateByNameAndType(zone, name, typ string) stream.SetIterator {
	if err := rrset.ValidateQuery(name, typ); err != nil {
		return stream.Failed(err)
	}
	return p.withProfiles(zone, stream.NewGrouper(p.list.byNameAndType(zone, name, typ), stream.ByQualifier))
}

// GetByNameTypeAndQualifier returns one qualified record set, if present.
func (p *Profiled) GetByNameTypeAndQualifier(ctx context.Context, zone, name, typ, qualifier string) (rrset.RecordSet, bool, error) {
	if err := rrset.ValidateQuery(name, typ); err != nil {
		return rrset.RecordSet{}, false, err
	}
	if qualifier == "" {
		return rrset.RecordSet{}, false, &rrset.ArgumentError{Field: "qualifier", Message: "required"}
	}
	key := rrset.NewKey(name, typ, qualifier)
	return firstSet(ctx, p.withProfiles(zone, stream.NewGrouper(p.list.byKey(zone, key), stream.ByQualifier)))
}

// Qualifiers lists the qualifiers stored for name and type in listing order.
func (p *Profiled) Qualifiers(ctx context.Context, zone, name, typ string) ([]string, error) {
	it := p.list.byNameAndType(zone, name, typ)
	var out []string
	for it.Next(ctx) {
		if q := it.Record().Qualifier; q != "" && !slices.Contains(out, q) {
			out = append(out, q)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

// Profile returns the stored profile of key.
func (p *Profiled) Profile(ctx context.Context, zone string, key rrset.Key) (rrset.Profile, error) {
	return p.backend.Profile(ctx, zone, key)
}

// ReplaceProfile stores prof for key and waits for the write to finish.
func (p *Profiled) ReplaceProfile(ctx context.Context, zone string, key rrset.Key, prof rrset.Profile) error {
	job, err := p.backend.SetProfile(ctx, zone, key, prof)
	if err == nil {
		err = p.waiter.AwaitCompletion(ctx, job)
	}
	metrics.ProviderOperations.WithLabelValues(p.name, string(reconciler.ActionProfile), metrics.Status(err)).Inc()
	if err != nil {
		return provider.WrapError(p.name, "set profile", err)
	}
	return nil
}

func (p *Profiled) checkProfile(set rrset.RecordSet) error {
	kinds := []rrset.Kind{set.Profile.Kind()}
	if !p.Supports(kinds) {
		return &rrset.UnsupportedProfileError{Kinds: kinds}
	}
	if !p.SupportsType(set.Type) {
		return &rrset.ArgumentError{Field: "type", Message: fmt.Sprintf("%s records cannot carry a %s profile", set.Type, p.Kind())}
	}
	switch prof := set.Profile.(type) {
	case *rrset.Geo:
		if supported := p.SupportedRegions(); len(supported) > 0 && !supported.Covers(prof.Regions) {
			return &rrset.ArgumentError{Field: "profile", Message: fmt.Sprintf("regions %s are not all supported", prof.Regions)}
		}
	case *rrset.Weighted:
		if supported := p.SupportedWeights(); len(supported) > 0 && !slices.Contains(supported, prof.Weight) {
			return &rrset.ArgumentError{Field: "profile", Message: fmt.Sprintf("weight %d is not supported", prof.Weight)}
		}
	}
	return nil
}

func (p *Profiled) lockGroup(zone, name, typ string) func() {
	if p.part == nil {
		return func() {}
	}
	return p.locks.Lock(partition.GroupKey(zone, name, typ))
}

// Put makes the stored records and profile of set's qualifier equal set.
// For geo, sibling qualifiers then lose any regions set now claims.
func (p *Profiled) Put(ctx context.Context, zone string, set rrset.RecordSet) (*reconciler.Result, error) {
	if err := set.ValidateForWrite(); err != nil {
		return nil, err
	}
	if set.Profile == nil {
		return nil, &rrset.ArgumentError{Field: "profile", Message: "required"}
	}
	if err := p.checkProfile(set); err != nil {
		return nil, err
	}

	start := time.Now()
	key := set.Key()
	unlock := p.lockGroup(zone, key.Name, key.Type)
	defer unlock()

	result, err := p.rec.Reconcile(ctx, zone, set, p.list.byKey(zone, key))
	if err != nil {
		return result, err
	}

	if err := p.putProfile(ctx, zone, set, result); err != nil {
		return result, err
	}

	if p.part != nil {
		rewrites, err := p.part.Partition(ctx, zone, set)
		for _, rw := range rewrites {
			result.AddAction(p.profileAction(zone, rw.Key, (&rrset.Geo{Regions: rw.After}).String()))
		}
		if err != nil {
			return result, err
		}
	}

	metrics.PutDuration.WithLabelValues(p.name, string(p.Kind())).Observe(time.Since(start).Seconds())
	return result, nil
}

func (p *Profiled) profileAction(zone string, key rrset.Key, data string) reconciler.Action {
	return reconciler.Action{
		Type:       reconciler.ActionProfile,
		Status:     reconciler.StatusSuccess,
		Provider:   p.name,
		Zone:       zone,
		Name:       key.Name,
		RecordType: key.Type,
		Qualifier:  key.Qualifier,
		Data:       data,
	}
}

func (p *Profiled) putProfile(ctx context.Context, zone string, set rrset.RecordSet, result *reconciler.Result) error {
	key := set.Key()
	current, err := p.backend.Profile(ctx, zone, key)
	if err != nil && !provider.IsNotFound(err) {
		return provider.WrapError(p.name, "get profile", err)
	}
	if err == nil && rrset.ProfilesEqual(current, set.Profile) {
		return nil
	}

	action := p.profileAction(zone, key, set.Profile.String())
	if p.dryRun {
		p.logger.Info("would set profile", slog.String("key", key.String()), slog.String("profile", set.Profile.String()))
		result.AddAction(action)
		return nil
	}
	if err := p.ReplaceProfile(ctx, zone, key, set.Profile); err != nil {
		action.Status = reconciler.StatusFailed
		action.Error = err.Error()
		result.AddAction(action)
		return err
	}
	p.logger.Info("set profile", slog.String("key", key.String()), slog.String("profile", set.Profile.String()))
	result.AddAction(action)
	return nil
}

// DeleteByNameTypeAndQualifier removes the records and profile of one qualifier.
func (p *Profiled) DeleteByNameTypeAndQualifier(ctx context.Context, zone, name, typ, qualifier string) (*reconciler.Result, error) {
	if err := rrset.ValidateQuery(name, typ); err != nil {
		return nil, err
	}
	if qualifier == "" {
		return nil, &rrset.ArgumentError{Field: "qualifier", Message: "required"}
	}
	key := rrset.NewKey(name, typ, qualifier)
	unlock := p.lockGroup(zone, key.Name, key.Type)
	defer unlock()
	return p.deleteQualifier(ctx, zone, key)
}

func (p *Profiled) deleteQualifier(ctx context.Context, zone string, key rrset.Key) (*reconciler.Result, error) {
	result, err := p.rec.DeleteAll(ctx, zone, p.list.byKey(zone, key))
	if err != nil {
		return result, err
	}

	if _, err := p.backend.Profile(ctx, zone, key); provider.IsNotFound(err) {
		return result, nil
	} else if err != nil {
		return result, provider.WrapError(p.name, "get profile", err)
	}

	action := p.profileAction(zone, key, "removed")
	if p.dryRun {
		result.AddAction(action)
		return result, nil
	}
	job, err := p.backend.DeleteProfile(ctx, zone, key)
	if err == nil {
		err = p.waiter.AwaitCompletion(ctx, job)
	}
	metrics.ProviderOperations.WithLabelValues(p.name, "delete_profile", metrics.Status(err)).Inc()
	if err != nil && !provider.IsNotFound(err) {
		action.Status = reconciler.StatusFailed
		action.Error = err.Error()
		result.AddAction(action)
		return result, provider.WrapError(p.name, "delete profile", err)
	}
	result.AddAction(action)
	return result, nil
}

// DeleteByNameAndType removes every qualifier of name and type. Providers
// have no bulk delete, so each qualifier is removed in turn.
func (p *Profiled) DeleteByNameAndType(ctx context.Context, zone, name, typ string) (*reconciler.Result, error) {
	if err := rrset.ValidateQuery(name, typ); err != nil {
		return nil, err
	}
	unlock := p.lockGroup(zone, name, typ)
	defer unlock()

	qualifiers, err := p.Qualifiers(ctx, zone, name, typ)
	if err != nil {
		return nil, err
	}
	result := reconciler.NewResult(p.dryRun)
	for _, q := range qualifiers {
		r, err := p.deleteQualifier(ctx, zone, rrset.NewKey(name, typ, q))
		result.Merge(r)
		if err != nil {
			result.Complete()
			return result, err
		}
	}
	result.Complete()
	return result, nil
}
