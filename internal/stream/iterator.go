// Package stream turns paginated provider listings into lazy, forward-only
// sequences of flat records and logical record sets.
//
// Iterators follow the sql.Rows shape: call Next until it returns false, read
// the current element after each true, then check Err. None of them prefetch;
// a provider is only called from inside Next.
package stream

import (
	"context"
	"slices"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// RecordIterator is a single-pass sequence of flat records.
type RecordIterator interface {
	Next(ctx context.Context) bool
	Record() provider.Record
	Err() error
}

type sliceIterator struct {
	records []provider.Record
	pos     int
	cur     provider.Record
}

// FromSlice iterates over records in order.
func FromSlice(records []provider.Record) RecordIterator {
	return &sliceIterator{records: records}
}

func (s *sliceIterator) Next(ctx context.Context) bool {
	if ctx.Err() != nil || s.pos >= len(s.records) {
		return false
	}
	s.cur = s.records[s.pos]
	s.pos++
	return true
}

func (s *sliceIterator) Record() provider.Record { return s.cur }
func (s *sliceIterator) Err() error              { return nil }

type filterIterator struct {
	src  RecordIterator
	keep func(provider.Record) bool
}

// Filter yields only the records for which keep returns true.
func Filter(src RecordIterator, keep func(provider.Record) bool) RecordIterator {
	return &filterIterator{src: src, keep: keep}
}

func (f *filterIterator) Next(ctx context.Context) bool {
	for f.src.Next(ctx) {
		if f.keep(f.src.Record()) {
			return true
		}
	}
	return false
}

func (f *filterIterator) Record() provider.Record { return f.src.Record() }
func (f *filterIterator) Err() error              { return f.src.Err() }

// sortedIterator drains its source on the first call to Next and then yields
// the records in provider.CompareRecords order.
type sortedIterator struct {
	src     RecordIterator
	drained bool
	err     error
	inner   RecordIterator
}

// Sorted orders an unordered listing so that equal keys become contiguous.
// It reads the whole source before yielding the first record.
func Sorted(src RecordIterator) RecordIterator {
	return &sortedIterator{src: src}
}

func (s *sortedIterator) Next(ctx context.Context) bool {
	if !s.drained {
		s.drained = true
		records, err := CollectRecords(ctx, s.src)
		if err != nil {
			s.err = err
			return false
		}
		slices.SortStableFunc(records, provider.CompareRecords)
		s.inner = FromSlice(records)
	}
	if s.inner == nil {
		return false
	}
	return s.inner.Next(ctx)
}

func (s *sortedIterator) Record() provider.Record { return s.inner.Record() }
func (s *sortedIterator) Err() error              { return s.err }

// CollectRecords drains it into a slice.
func CollectRecords(ctx context.Context, it RecordIterator) ([]provider.Record, error) {
	var out []provider.Record
	for it.Next(ctx) {
		out = append(out, it.Record())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}
