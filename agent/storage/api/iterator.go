package api

import (
	"context"
)

// Iterator is a lazy, finite and non-restartable sequence of records. The
// usage pattern is the same as with sql.Rows:
//
//	for it.Next(ctx) {
//		r := it.Record()
//	}
//	err := it.Err()
//
// Close must be called if the iteration is stopped early. It's safe to call
// Close many times. Records are read in pages, so a concurrent write may or
// may not be seen by a running iteration.
type Iterator interface {
	Next(ctx context.Context) bool
	Record() Record
	Err() error
	Close() error
}

// PageFunc fetches the page of records which come after the cursor. An
// empty after means the beginning. The returned next is the cursor of the
// following page, empty when there are no more pages. A page can be empty
// even if next isn't.
type PageFunc func(ctx context.Context, after string, limit int) (page []Record, next string, err error)

// DefaultPageSize is the batch size of the paging iterators.
const DefaultPageSize = 100

// NewPageIterator returns an iterator which reads records page by page with
// fetch. Only one page is kept in memory.
func NewPageIterator(fetch PageFunc, limit int) Iterator {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return &pageIterator{fetch: fetch, limit: limit, pos: -1}
}

// NextCursor returns the cursor for a page which is keyed by record ID: the
// last ID of a full page, otherwise empty.
func NextCursor(page []Record, limit int) string {
	if len(page) < limit || len(page) == 0 {
		return ""
	}
	return page[len(page)-1].ID
}

type pageIterator struct {
	fetch PageFunc
	limit int

	page    []Record
	pos     int
	after   string
	started bool
	done    bool
	err     error
}

func (p *pageIterator) Next(ctx context.Context) bool {
	if p.done {
		return false
	}
	p.pos++
	for p.pos >= len(p.page) {
		if p.started && p.after == "" {
			p.done = true
			p.page = nil
			return false
		}
		page, next, err := p.fetch(ctx, p.after, p.limit)
		if err != nil {
			p.err = err
			p.done = true
			p.page = nil
			return false
		}
		p.started = true
		p.page, p.pos, p.after = page, 0, next
	}
	return true
}

func (p *pageIterator) Record() Record {
	if p.pos < 0 || p.pos >= len(p.page) {
		return Record{}
	}
	return p.page[p.pos]
}

func (p *pageIterator) Err() error {
	return p.err
}

func (p *pageIterator) Close() error {
	p.done = true
	p.page = nil
	return nil
}

// Filtered returns an iterator which skips records not matching the options.
// Matching is done before the record is given to the caller, which keeps the
// whole result set out of memory.
func Filtered(it Iterator, opts ListOptions) Iterator {
	if opts.IDPrefix == "" && len(opts.Filter) == 0 {
		return it
	}
	return &filtered{Iterator: it, opts: opts}
}

type filtered struct {
	Iterator
	opts ListOptions
}

func (f *filtered) Next(ctx context.Context) bool {
	for f.Iterator.Next(ctx) {
		if f.opts.Match(f.Iterator.Record()) {
			return true
		}
	}
	return false
}

// Mapped returns an iterator which transforms each record with fn.
func Mapped(it Iterator, fn func(Record) Record) Iterator {
	return &mapped{Iterator: it, fn: fn}
}

type mapped struct {
	Iterator
	fn func(Record) Record
}

func (m *mapped) Record() Record {
	return m.fn(m.Iterator.Record())
}

// Collect drains the iterator to a slice and closes it. It's meant for tests
// and for the small result sets.
func Collect(ctx context.Context, it Iterator) (rs []Record, err error) {
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()
	for it.Next(ctx) {
		rs = append(rs, it.Record())
	}
	return rs, it.Err()
}

// Count drains the iterator and returns the number of records.
func Count(ctx context.Context, it Iterator) (n int, err error) {
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()
	for it.Next(ctx) {
		n++
	}
	return n, it.Err()
}

// SliceIterator iterates over records already in memory.
func SliceIterator(rs []Record) Iterator {
	return &sliceIterator{rs: rs, pos: -1}
}

type sliceIterator struct {
	rs  []Record
	pos int
}

func (s *sliceIterator) Next(context.Context) bool {
	if s.pos+1 >= len(s.rs) {
		s.pos = len(s.rs)
		return false
	}
	s.pos++
	return true
}

func (s *sliceIterator) Record() Record {
	if s.pos < 0 || s.pos >= len(s.rs) {
		return Record{}
	}
	return s.rs[s.pos]
}

func (s *sliceIterator) Err() error   { return nil }
func (s *sliceIterator) Close() error { s.pos = len(s.rs); return nil }
