package stream

import (
	"context"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

type setSlice struct {
	sets []rrset.RecordSet
	pos  int
	cur  rrset.RecordSet
}

// SetsFromSlice iterates over sets in order.
func SetsFromSlice(sets []rrset.RecordSet) SetIterator {
	return &setSlice{sets: sets}
}

func (s *setSlice) Next(ctx context.Context) bool {
	if ctx.Err() != nil || s.pos >= len(s.sets) {
		return false
	}
	s.cur = s.sets[s.pos]
	s.pos++
	return true
}

func (s *setSlice) RecordSet() rrset.RecordSet { return s.cur }
func (s *setSlice) Err() error                 { return nil }

// chain yields every set of each source in turn. A source is only pulled
// after the previous one is exhausted; the first error stops the chain.
type chain struct {
	sources []SetIterator
	idx     int
	err     error
}

// Chain concatenates sources in the given order.
func Chain(sources ...SetIterator) SetIterator {
	return &chain{sources: sources}
}

func (c *chain) Next(ctx context.Context) bool {
	for c.err == nil && c.idx < len(c.sources) {
		src := c.sources[c.idx]
		if src.Next(ctx) {
			return true
		}
		if err := src.Err(); err != nil {
			c.err = err
			return false
		}
		c.idx++
	}
	return false
}

func (c *chain) RecordSet() rrset.RecordSet { return c.sources[c.idx].RecordSet() }
func (c *chain) Err() error                 { return c.err }

type mapSets struct {
	src SetIterator
	fn  func(context.Context, rrset.RecordSet) (rrset.RecordSet, error)
	cur rrset.RecordSet
	err error
}

// MapSets applies fn to every set of src. An error from fn ends iteration.
func MapSets(src SetIterator, fn func(context.Context, rrset.RecordSet) (rrset.RecordSet, error)) SetIterator {
	return &mapSets{src: src, fn: fn}
}

func (m *mapSets) Next(ctx context.Context) bool {
	if m.err != nil || !m.src.Next(ctx) {
		return false
	}
	m.cur, m.err = m.fn(ctx, m.src.RecordSet())
	return m.err == nil
}

func (m *mapSets) RecordSet() rrset.RecordSet { return m.cur }

func (m *mapSets) Err() error {
	if m.err != nil {
		return m.err
	}
	return m.src.Err()
}

type filterSets struct {
	src  SetIterator
	keep func(rrset.RecordSet) bool
}

// FilterSets yields only the sets for which keep returns true.
func FilterSets(src SetIterator, keep func(rrset.RecordSet) bool) SetIterator {
	return &filterSets{src: src, keep: keep}
}

func (f *filterSets) Next(ctx context.Context) bool {
	for f.src.Next(ctx) {
		if f.keep(f.src.RecordSet()) {
			return true
		}
	}
	return false
}

func (f *filterSets) RecordSet() rrset.RecordSet { return f.src.RecordSet() }
func (f *filterSets) Err() error                 { return f.src.Err() }

// CollectSets drains it into a slice.
func CollectSets(ctx context.Context, it SetIterator) ([]rrset.RecordSet, error) {
	var out []rrset.RecordSet
	for it.Next(ctx) {
		out = append(out, it.RecordSet())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

type failed struct{ err error }

// Failed returns an empty iterator whose Err reports err.
func Failed(err error) SetIterator { return failed{err: err} }

func (f failed) Next(context.Context) bool  { return false }
func (f failed) RecordSet() rrset.RecordSet { return rrset.RecordSet{} }
func (f failed) Err() error                 { return f.err }
