package stream

import (
	"context"

	"github.com/koustreak/userstream/internal/errs"
	"github.com/koustreak/userstream/internal/logger"
)

// Paginate fetches the rows in [offset, offset+pageSize) on a connection
// of its own, which is closed before it returns. Calling it twice with the
// same arguments against an unchanged table returns the same page.
func (s *Streamer) Paginate(ctx context.Context, pageSize, offset int) ([]Row, error) {
	if err := checkSize("page size", pageSize); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "offset must be >= 0, got %d", offset)
	}
	return s.page(ctx, pageSize, offset)
}

func (s *Streamer) page(ctx context.Context, pageSize, offset int) (page []Row, err error) {
	query, args := s.selectQuery(rowColumns...).Limit(pageSize).Offset(offset).Build()

	cur, err := openCursor(ctx, s.connector, query, args)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := cur.release(ctx); rerr != nil && err == nil {
			page, err = nil, wrap(errs.ErrKindConnectionFailed, "failed to release connection", rerr)
		}
	}()

	page = make([]Row, 0, pageSize)
	for cur.rows.Next() {
		r, err := scanRow(cur.rows)
		if err != nil {
			return nil, err
		}
		page = append(page, r)
	}
	if err := cur.rows.Err(); err != nil {
		return nil, wrap(errs.ErrKindQueryFailed, "fetch failed", err)
	}
	return page, nil
}

// PageIterator yields consecutive pages, each fetched by an independent
// LIMIT/OFFSET query. No connection is held between pages, so a stream can
// be resumed from Offset with LazyPaginateFrom.
type PageIterator struct {
	ctx      context.Context
	s        *Streamer
	pageSize int
	offset   int
	log      *logger.Logger

	state State
	value []Row
	err   error
	pages int
}

// LazyPaginate returns an iterator over the table's pages starting at
// offset 0. It stops at the first empty page.
func (s *Streamer) LazyPaginate(ctx context.Context, pageSize int) (*PageIterator, error) {
	return s.LazyPaginateFrom(ctx, pageSize, 0)
}

// LazyPaginateFrom is LazyPaginate starting at offset.
func (s *Streamer) LazyPaginateFrom(ctx context.Context, pageSize, offset int) (*PageIterator, error) {
	if err := checkSize("page size", pageSize); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "offset must be >= 0, got %d", offset)
	}
	return &PageIterator{
		ctx:      ctx,
		s:        s,
		pageSize: pageSize,
		offset:   offset,
		log:      s.logger(ctx, "pages"),
	}, nil
}

// Next implements Iterator.
func (it *PageIterator) Next() bool {
	switch it.state {
	case StateExhausted, StateClosed:
		return false
	case StateUnopened:
		it.state = StateOpen
		it.log.DebugWith("pagination started", map[string]interface{}{
			"page_size": it.pageSize,
			"offset":    it.offset,
		})
	}

	page, err := it.s.page(it.ctx, it.pageSize, it.offset)
	if err != nil {
		it.value = nil
		it.err = err
		it.state = StateClosed
		it.log.ErrorWith("page fetch failed", err, map[string]interface{}{"offset": it.offset})
		return false
	}
	if len(page) == 0 {
		it.value = nil
		it.state = StateExhausted
		it.log.DebugWith("pagination exhausted", map[string]interface{}{"pages": it.pages})
		return false
	}

	it.value = page
	it.offset += it.pageSize
	it.pages++
	it.state = StateStreaming
	return true
}

// Value implements Iterator.
func (it *PageIterator) Value() []Row { return it.value }

// Err implements Iterator.
func (it *PageIterator) Err() error { return it.err }

// State implements Iterator.
func (it *PageIterator) State() State { return it.state }

// Offset is the offset of the next page Next would fetch.
func (it *PageIterator) Offset() int { return it.offset }

// Close implements Iterator. Pages hold nothing open, so Close only ends
// the iteration.
func (it *PageIterator) Close() error {
	it.state = StateClosed
	it.value = nil
	return nil
}

var _ Iterator[[]Row] = (*PageIterator)(nil)
