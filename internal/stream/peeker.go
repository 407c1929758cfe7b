package stream

import (
	"context"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// Peeker adds one element of lookahead to a RecordIterator.
type Peeker struct {
	src  RecordIterator
	head provider.Record
	has  bool
	cur  provider.Record
}

// NewPeeker wraps src.
func NewPeeker(src RecordIterator) *Peeker {
	return &Peeker{src: src}
}

// Peek returns the next record without consuming it.
func (p *Peeker) Peek(ctx context.Context) (provider.Record, bool) {
	if !p.has {
		if !p.src.Next(ctx) {
			return provider.Record{}, false
		}
		p.head = p.src.Record()
		p.has = true
	}
	return p.head, true
}

// Next advances to the next record, consuming a peeked one first.
func (p *Peeker) Next(ctx context.Context) bool {
	if p.has {
		p.cur = p.head
		p.has = false
		return true
	}
	if !p.src.Next(ctx) {
		return false
	}
	p.cur = p.src.Record()
	return true
}

func (p *Peeker) Record() provider.Record { return p.cur }
func (p *Peeker) Err() error              { return p.src.Err() }
