package rrapi

import (
	"context"
	"fmt"
	"slices"

	"gitlab.bluewillows.net/root/zoneweaver/internal/partition"
	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/internal/stream"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Router composes one basic API with any number of profile APIs.
//
// Listings return basic results first, then each profile API in the order
// it was given. Writes go to exactly one API, chosen by the profile kind of
// the record set.
type Router struct {
	name     string
	basic    *Basic
	profiles []*Profiled
}

// NewRouter composes basic with profiles, in that order.
func NewRouter(name string, basic *Basic, profiles ...*Profiled) *Router {
	return &Router{name: name, basic: basic, profiles: profiles}
}

// ForProvider builds the router for p: its basic records plus one profile
// API per backend when p implements provider.ProfileProvider. All APIs share
// one lock table unless WithLocks is given.
func ForProvider(p provider.Provider, opts ...Option) *Router {
	opts = append([]Option{WithLocks(&partition.KeyedMutex{})}, opts...)

	var profiles []*Profiled
	if pp, ok := p.(provider.ProfileProvider); ok {
		for _, backend := range pp.ProfileBackends() {
			profiles = append(profiles, NewProfiled(p.Name(), backend, opts...))
		}
	}
	return NewRouter(p.Name(), NewBasic(p.Name(), p, opts...), profiles...)
}

// Name returns the provider instance name.
func (r *Router) Name() string { return r.name }

// Kinds lists the profile kinds served, in routing order.
func (r *Router) Kinds() []rrset.Kind {
	kinds := make([]rrset.Kind, 0, len(r.profiles))
	for _, p := range r.profiles {
		kinds = append(kinds, p.Kind())
	}
	return kinds
}

// Iterate lists every record set in zone, basic first.
func (r *Router) Iterate(zone string) stream.SetIterator {
	sources := []stream.SetIterator{r.basic.Iterate(zone)}
	for _, p := range r.profiles {
		sources = append(sources, p.Iterate(zone))
	}
	return stream.Chain(sources...)
}

// IterateByName lists every record set of name.
func (r *Router) IterateByName(zone, name string) stream.SetIterator {
	sources := []stream.SetIterator{r.basic.IterateByName(zone, name)}
	for _, p := range r.profiles {
		sources = append(sources, p.IterateByName(zone, name))
	}
	return stream.Chain(sources...)
}

// IterateByNameAndType lists the basic set and every qualified set of name and type.
func (r *Router) IterateByNameAndType(zone, name, typ string) stream.SetIterator {
	sources := []stream.SetIterator{r.basic.IterateByNameAndType(zone, name, typ)}
	for _, p := range r.profiles {
		sources = append(sources, p.IterateByNameAndType(zone, name, typ))
	}
	return stream.Chain(sources...)
}

// GetByNameAndType returns the unqualified record set of name and type.
func (r *Router) GetByNameAndType(ctx context.Context, zone, name, typ string) (rrset.RecordSet, bool, error) {
	return r.basic.GetByNameAndType(ctx, zone, name, typ)
}

// GetByNameTypeAndQualifier returns the first profile API's match.
func (r *Router) GetByNameTypeAndQualifier(ctx context.Context, zone, name, typ, qualifier string) (rrset.RecordSet, bool, error) {
	if err := rrset.ValidateQuery(name, typ); err != nil {
		return rrset.RecordSet{}, false, err
	}
	if qualifier == "" {
		return rrset.RecordSet{}, false, &rrset.ArgumentError{Field: "qualifier", Message: "required"}
	}
	for _, p := range r.profiles {
		set, ok, err := p.GetByNameTypeAndQualifier(ctx, zone, name, typ, qualifier)
		if err != nil || ok {
			return set, ok, err
		}
	}
	return rrset.RecordSet{}, false, nil
}

// Route returns the profile API that accepts kinds, or nil when none does.
func (r *Router) Route(kinds []rrset.Kind) *Profiled {
	for _, p := range r.profiles {
		if p.Supports(kinds) {
			return p
		}
	}
	return nil
}

// Put writes set to the basic API when it has no profile, or to the first
// profile API serving its profile kind. A qualifier already held by another
// profile API for the same name and type is rejected.
func (r *Router) Put(ctx context.Context, zone string, set rrset.RecordSet) (*reconciler.Result, error) {
	if err := set.ValidateForWrite(); err != nil {
		return nil, err
	}
	if set.Profile == nil {
		return r.basic.Put(ctx, zone, set)
	}
	kinds := []rrset.Kind{set.Profile.Kind()}
	api := r.Route(kinds)
	if api == nil {
		return nil, &rrset.UnsupportedProfileError{Kinds: kinds}
	}
	for _, other := range r.profiles {
		if other == api {
			continue
		}
		_, taken, err := other.GetByNameTypeAndQualifier(ctx, zone, set.Name, set.Type, set.Qualifier)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, &rrset.ArgumentError{
				Field:   "qualifier",
				Message: fmt.Sprintf("%q is already used by a %s record set", set.Qualifier, other.Kind()),
			}
		}
	}
	return api.Put(ctx, zone, set)
}

// DeleteByNameAndType removes the basic set and every qualified set of name
// and type.
func (r *Router) DeleteByNameAndType(ctx context.Context, zone, name, typ string) (*reconciler.Result, error) {
	result, err := r.basic.DeleteByNameAndType(ctx, zone, name, typ)
	if err != nil {
		return result, err
	}
	for _, p := range r.profiles {
		pr, err := p.DeleteByNameAndType(ctx, zone, name, typ)
		result.Merge(pr)
		if err != nil {
			result.Complete()
			return result, err
		}
	}
	result.Complete()
	return result, nil
}

// DeleteByNameTypeAndQualifier removes one qualifier from every profile API.
func (r *Router) DeleteByNameTypeAndQualifier(ctx context.Context, zone, name, typ, qualifier string) (*reconciler.Result, error) {
	if err := rrset.ValidateQuery(name, typ); err != nil {
		return nil, err
	}
	if qualifier == "" {
		return nil, &rrset.ArgumentError{Field: "qualifier", Message: "required"}
	}
	result := reconciler.NewResult(r.DryRun())
	for _, p := range r.profiles {
		pr, err := p.DeleteByNameTypeAndQualifier(ctx, zone, name, typ, qualifier)
		result.Merge(pr)
		if err != nil {
			result.Complete()
			return result, err
		}
	}
	result.Complete()
	return result, nil
}

// Delete removes the record set with key: the basic set when key has no
// qualifier, otherwise that qualifier of every profile API.
func (r *Router) Delete(ctx context.Context, zone string, key rrset.Key) (*reconciler.Result, error) {
	if key.Qualifier == "" {
		return r.basic.DeleteByNameAndType(ctx, zone, key.Name, key.Type)
	}
	return r.DeleteByNameTypeAndQualifier(ctx, zone, key.Name, key.Type, key.Qualifier)
}

// DryRun reports whether writes are planned without being issued.
func (r *Router) DryRun() bool {
	return r.basic.rec.DryRun()
}

// SupportedRegions returns the union of the regions of every geo API.
func (r *Router) SupportedRegions() rrset.Regions {
	out := rrset.Regions{}
	for _, p := range r.profiles {
		for region, territories := range p.SupportedRegions() {
			out[region] = append(out[region], territories...)
		}
	}
	return out.Normalize()
}

// SupportedWeights returns the union of the weights of every weighted API.
func (r *Router) SupportedWeights() []int {
	var out []int
	for _, p := range r.profiles {
		out = append(out, p.SupportedWeights()...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
