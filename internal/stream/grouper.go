package stream

import (
	"context"
	"fmt"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// KeyFunc returns the grouping key of a flat record.
type KeyFunc func(provider.Record) rrset.Key

// ByNameAndType groups basic records by canonical name and type.
func ByNameAndType(r provider.Record) rrset.Key {
	return rrset.NewKey(r.Name, r.Type, "")
}

// ByQualifier groups profiled records by canonical name, type and qualifier.
func ByQualifier(r provider.Record) rrset.Key {
	return r.Key()
}

// SetIterator is a single-pass sequence of logical record sets.
type SetIterator interface {
	Next(ctx context.Context) bool
	RecordSet() rrset.RecordSet
	Err() error
}

// Grouper folds contiguous records that share a key into one record set.
// The input must already be ordered so that equal keys are adjacent. Values
// are decoded with the codec registered for the record type and kept in
// input order; the TTL comes from the first record of each group.
type Grouper struct {
	src *Peeker
	key KeyFunc
	cur rrset.RecordSet
	err error
}

// NewGrouper groups src by key.
func NewGrouper(src RecordIterator, key KeyFunc) *Grouper {
	return &Grouper{src: NewPeeker(src), key: key}
}

// Next assembles the next record set.
func (g *Grouper) Next(ctx context.Context) bool {
	if g.err != nil || !g.src.Next(ctx) {
		return false
	}

	first := g.src.Record()
	k := g.key(first)
	set := rrset.RecordSet{
		Name:      k.Name,
		Type:      k.Type,
		Qualifier: k.Qualifier,
		TTL:       rrset.Int(first.TTL),
	}
	codec := rrset.Lookup(k.Type)

	if err := appendDecoded(&set, codec, first); err != nil {
		g.err = err
		return false
	}
	for {
		head, ok := g.src.Peek(ctx)
		if !ok || g.key(head) != k {
			break
		}
		g.src.Next(ctx)
		if err := appendDecoded(&set, codec, head); err != nil {
			g.err = err
			return false
		}
	}
	if err := g.src.Err(); err != nil {
		g.err = err
		return false
	}

	g.cur = set
	return true
}

func appendDecoded(set *rrset.RecordSet, codec *rrset.Codec, r provider.Record) error {
	v, err := codec.Decode(r.Data, r.Priority)
	if err != nil {
		return fmt.Errorf("decoding record %s (%s): %w", r.ID, set.Key(), err)
	}
	set.Records = append(set.Records, v)
	return nil
}

// RecordSet returns the current record set.
func (g *Grouper) RecordSet() rrset.RecordSet { return g.cur }

// Err returns the error that ended iteration, if any.
func (g *Grouper) Err() error {
	if g.err != nil {
		return g.err
	}
	return g.src.Err()
}
