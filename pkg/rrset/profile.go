package rrset

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Kind names a traffic routing profile.
type Kind string

const (
	KindGeo      Kind = "geo"
	KindWeighted Kind = "weighted"
)

// Profile is routing metadata attached to a qualified record set.
// The only implementations are *Geo and *Weighted.
type Profile interface {
	Kind() Kind
	Clone() Profile
	String() string
	validate() error
}

// Regions maps a region key (e.g. "US") to the set of territories claimed
// under it (e.g. "NY", "CA"). Territory lists are kept sorted and free of
// duplicates by Normalize.
type Regions map[string][]string

// Normalize returns a copy with sorted, de-duplicated territory lists.
func (r Regions) Normalize() Regions {
	if r == nil {
		return nil
	}
	out := make(Regions, len(r))
	for region, territories := range r {
		t := slices.Clone(territories)
		sort.Strings(t)
		out[region] = slices.Compact(t)
	}
	return out
}

// Clone returns a deep copy.
func (r Regions) Clone() Regions {
	if r == nil {
		return nil
	}
	out := make(Regions, len(r))
	for region, territories := range r {
		out[region] = slices.Clone(territories)
	}
	return out
}

// Equal compares two claims, ignoring territory order.
func (r Regions) Equal(o Regions) bool {
	a, b := r.Normalize(), o.Normalize()
	if len(a) != len(b) {
		return false
	}
	for region, territories := range a {
		other, ok := b[region]
		if !ok || !slices.Equal(territories, other) {
			return false
		}
	}
	return true
}

// Without removes every territory that claimed also holds under the same
// region key. A region key present in claimed is always kept, even when no
// territory remains under it; a region key absent from claimed is dropped
// only if it was already empty.
func (r Regions) Without(claimed Regions) Regions {
	out := make(Regions, len(r))
	for region, territories := range r {
		taken, inClaim := claimed[region]
		rest := make([]string, 0, len(territories))
		for _, t := range territories {
			if !slices.Contains(taken, t) {
				rest = append(rest, t)
			}
		}
		if len(rest) == 0 && !inClaim {
			continue
		}
		out[region] = rest
	}
	return out.Normalize()
}

// Overlaps reports whether any (region, territory) pair is held by both claims.
func (r Regions) Overlaps(o Regions) bool {
	for region, territories := range r {
		for _, t := range territories {
			if slices.Contains(o[region], t) {
				return true
			}
		}
	}
	return false
}

// Covers reports whether every (region, territory) pair of o is also in r.
func (r Regions) Covers(o Regions) bool {
	for region, territories := range o {
		supported, ok := r[region]
		if !ok {
			return false
		}
		for _, t := range territories {
			if !slices.Contains(supported, t) {
				return false
			}
		}
	}
	return true
}

func (r Regions) String() string {
	keys := make([]string, 0, len(r))
	for region := range r {
		keys = append(keys, region)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, region := range keys {
		parts[i] = region + ":[" + strings.Join(r[region], ",") + "]"
	}
	return strings.Join(parts, " ")
}

// Geo claims traffic regions for a qualified record set.
type Geo struct {
	Regions Regions
}

func (g *Geo) Kind() Kind { return KindGeo }

func (g *Geo) Clone() Profile {
	return &Geo{Regions: g.Regions.Clone()}
}

func (g *Geo) String() string {
	return "geo{" + g.Regions.String() + "}"
}

func (g *Geo) validate() error {
	if len(g.Regions) == 0 {
		return &ArgumentError{Field: "profile.regions", Message: "at least one region is required"}
	}
	return nil
}

// Weighted assigns a relative load weight to a qualified record set.
type Weighted struct {
	Weight int
}

func (w *Weighted) Kind() Kind { return KindWeighted }

func (w *Weighted) Clone() Profile {
	return &Weighted{Weight: w.Weight}
}

func (w *Weighted) String() string {
	return fmt.Sprintf("weighted{%d}", w.Weight)
}

func (w *Weighted) validate() error {
	if w.Weight < 0 {
		return &ArgumentError{Field: "profile.weight", Message: fmt.Sprintf("must be non-negative, got %d", w.Weight)}
	}
	return nil
}

// ProfilesEqual compares two profiles, treating nil as "no profile".
func ProfilesEqual(a, b Profile) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Geo:
		y, ok := b.(*Geo)
		return ok && x.Regions.Equal(y.Regions)
	case *Weighted:
		y, ok := b.(*Weighted)
		return ok && x.Weight == y.Weight
	}
	return false
}

// GeoRegions returns the claim of a geo profile, or nil for anything else.
func GeoRegions(p Profile) Regions {
	if g, ok := p.(*Geo); ok {
		return g.Regions
	}
	return nil
}

type profileJSON struct {
	Kind    Kind    `json:"kind"`
	Regions Regions `json:"regions,omitempty"`
	Weight  *int    `json:"weight,omitempty"`
}

// MarshalProfile encodes a profile for storage.
func MarshalProfile(p Profile) ([]byte, error) {
	switch v := p.(type) {
	case *Geo:
		return json.Marshal(profileJSON{Kind: KindGeo, Regions: v.Regions.Normalize()})
	case *Weighted:
		return json.Marshal(profileJSON{Kind: KindWeighted, Weight: Int(v.Weight)})
	case nil:
		return nil, fmt.Errorf("nil profile")
	default:
		return nil, fmt.Errorf("unknown profile kind %q", p.Kind())
	}
}

// UnmarshalProfile decodes a profile written by MarshalProfile.
func UnmarshalProfile(data []byte) (Profile, error) {
	var raw profileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	switch raw.Kind {
	case KindGeo:
		return &Geo{Regions: raw.Regions.Normalize()}, nil
	case KindWeighted:
		if raw.Weight == nil {
			return nil, fmt.Errorf("decoding profile: weighted profile without weight")
		}
		return &Weighted{Weight: *raw.Weight}, nil
	default:
		return nil, fmt.Errorf("decoding profile: unknown kind %q", raw.Kind)
	}
}

// ParseRegions parses "US=NY|CA;EU=DE" into a claim space.
func ParseRegions(s string) (Regions, error) {
	out := Regions{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		region, list, ok := strings.Cut(part, "=")
		region = strings.TrimSpace(region)
		if !ok || region == "" {
			return nil, fmt.Errorf("invalid region entry %q: want REGION=T1|T2", part)
		}
		territories := []string{}
		for _, t := range strings.Split(list, "|") {
			if t = strings.TrimSpace(t); t != "" {
				territories = append(territories, t)
			}
		}
		out[region] = append(out[region], territories...)
	}
	return out.Normalize(), nil
}
