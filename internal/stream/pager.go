package stream

import (
	"context"
	"fmt"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// FetchFunc returns one page of records. An empty cursor requests the first page.
type FetchFunc func(ctx context.Context, cursor string) (provider.Page, error)

// Pager presents a paginated listing as one flat sequence. The next page is
// fetched only once the current one is exhausted. provider.ErrNotFound at any
// page boundary ends the sequence without an error; any other fetch error
// ends it and is reported by Err.
//
// A Pager cannot be restarted. Start a new one from the first page instead.
type Pager struct {
	fetch  FetchFunc
	onPage func(provider.Page)

	page    []provider.Record
	pos     int
	cursor  string
	started bool
	done    bool
	err     error
	cur     provider.Record
}

// PagerOption configures a Pager.
type PagerOption func(*Pager)

// WithPageHook calls fn after every successfully fetched page.
func WithPageHook(fn func(provider.Page)) PagerOption {
	return func(p *Pager) {
		p.onPage = fn
	}
}

// NewPager returns a Pager over fetch. Nothing is fetched until Next is called.
func NewPager(fetch FetchFunc, opts ...PagerOption) *Pager {
	p := &Pager{fetch: fetch}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next advances to the next record, fetching a page if needed.
func (p *Pager) Next(ctx context.Context) bool {
	for {
		if p.pos < len(p.page) {
			p.cur = p.page[p.pos]
			p.pos++
			return true
		}
		if p.done || p.err != nil {
			return false
		}
		if p.started && p.cursor == "" {
			p.done = true
			return false
		}
		if err := ctx.Err(); err != nil {
			p.err = err
			return false
		}

		prev := p.cursor
		page, err := p.fetch(ctx, p.cursor)
		if provider.IsNotFound(err) {
			p.done = true
			p.page = nil
			return false
		}
		if err != nil {
			p.err = err
			return false
		}
		if p.started && page.Cursor != "" && page.Cursor == prev {
			p.err = fmt.Errorf("listing cursor %q did not advance", prev)
			return false
		}

		p.started = true
		p.page = page.Records
		p.pos = 0
		p.cursor = page.Cursor
		if p.onPage != nil {
			p.onPage(page)
		}
	}
}

// Record returns the current record.
func (p *Pager) Record() provider.Record { return p.cur }

// Err returns the error that ended iteration, if any.
func (p *Pager) Err() error { return p.err }
