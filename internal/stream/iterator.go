package stream

import (
	"context"
	"iter"

	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/errs"
	"github.com/koustreak/userstream/internal/logger"
)

// State is the lifecycle position of an iterator.
type State int

const (
	// StateUnopened: created, nothing requested yet.
	StateUnopened State = iota
	// StateOpen: the source was opened by the first Next.
	StateOpen
	// StateStreaming: at least one element has been yielded.
	StateStreaming
	// StateExhausted: the source ran dry; resources are already released.
	StateExhausted
	// StateClosed: terminal, after Close, a failure, or Close after exhaustion.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Iterator is the pull interface shared by every streamer.
type Iterator[T any] interface {
	// Next fetches the next element. It returns false when the source is
	// exhausted, a fetch failed, or the iterator was closed.
	Next() bool
	// Value returns the element fetched by the last successful Next.
	Value() T
	// Err returns the failure that stopped iteration, or nil when the
	// source was simply exhausted.
	Err() error
	// Close releases the connection and cursor. It is idempotent.
	Close() error
	// State reports the lifecycle position.
	State() State
}

// Seq adapts it for range-over-func. Leaving the loop early, normally or
// by panic, closes the iterator. A failure is delivered as a final
// (zero, err) pair.
//
//	for row, err := range stream.Seq(s.Rows(ctx)) {
//	    if err != nil { return err }
//	    ...
//	}
func Seq[T any](it Iterator[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.Value(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// cursor is a connection plus the result set running on it. Both are
// released together, exactly once.
type cursor struct {
	conn     database.Conn
	rows     database.Rows
	released bool
}

// openCursor connects and runs query. The connection is closed again when
// the query fails, so a nil cursor never leaves anything open.
func openCursor(ctx context.Context, c database.Connector, query string, args []any) (*cursor, error) {
	conn, err := c.Connect(ctx)
	if err != nil {
		return nil, wrap(errs.ErrKindConnectionFailed, "failed to open connection", err)
	}
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		return nil, wrap(errs.ErrKindQueryFailed, "failed to execute query", err)
	}
	return &cursor{conn: conn, rows: rows}, nil
}

// release closes the result set and the connection. Cancellation of ctx
// does not prevent the release.
func (c *cursor) release(ctx context.Context) error {
	if c == nil || c.released {
		return nil
	}
	c.released = true
	c.rows.Close()
	return c.conn.Close(context.WithoutCancel(ctx))
}

// fetchFunc produces the next element from an open result set. ok=false
// with a nil error means the result set is exhausted.
type fetchFunc[T any] func(rows database.Rows) (value T, ok bool, err error)

// CursorIterator walks a single result set held open on a dedicated
// connection. Rows, Batches and Ages are all CursorIterators that differ
// only in projection and in how much they fetch per Next.
type CursorIterator[T any] struct {
	ctx   context.Context
	conn  database.Connector
	query string
	args  []any
	fetch fetchFunc[T]
	log   *logger.Logger

	cur     *cursor
	state   State
	value   T
	err     error
	yielded int
}

func newCursorIterator[T any](ctx context.Context, s *Streamer, component string, b *database.SelectBuilder, fetch fetchFunc[T]) *CursorIterator[T] {
	query, args := b.Build()
	return &CursorIterator[T]{
		ctx:   ctx,
		conn:  s.connector,
		query: query,
		args:  args,
		fetch: fetch,
		log:   s.logger(ctx, component),
	}
}

// Next implements Iterator.
func (it *CursorIterator[T]) Next() bool {
	switch it.state {
	case StateExhausted, StateClosed:
		return false
	case StateUnopened:
		if !it.open() {
			return false
		}
	}

	v, ok, err := it.fetch(it.cur.rows)
	if err != nil {
		it.fail(err)
		return false
	}
	if !ok {
		it.exhaust()
		return false
	}

	it.value = v
	it.yielded++
	it.state = StateStreaming
	return true
}

func (it *CursorIterator[T]) open() bool {
	cur, err := openCursor(it.ctx, it.conn, it.query, it.args)
	if err != nil {
		it.err = err
		it.state = StateClosed
		it.log.ErrorWith("stream open failed", err, nil)
		return false
	}
	it.cur = cur
	it.state = StateOpen
	it.log.Debug("stream opened")
	return true
}

func (it *CursorIterator[T]) exhaust() {
	var zero T
	it.value = zero
	it.state = StateExhausted
	if err := it.cur.release(it.ctx); err != nil {
		it.log.ErrorWith("release after exhaustion failed", err, nil)
	}
	it.log.DebugWith("stream exhausted", map[string]interface{}{"yielded": it.yielded})
}

func (it *CursorIterator[T]) fail(err error) {
	var zero T
	it.value = zero
	it.err = wrap(errs.ErrKindQueryFailed, "fetch failed", err)
	it.state = StateClosed
	_ = it.cur.release(it.ctx)
	it.log.ErrorWith("stream failed", it.err, map[string]interface{}{"yielded": it.yielded})
}

// Value implements Iterator.
func (it *CursorIterator[T]) Value() T { return it.value }

// Err implements Iterator.
func (it *CursorIterator[T]) Err() error { return it.err }

// State implements Iterator.
func (it *CursorIterator[T]) State() State { return it.state }

// Close implements Iterator.
func (it *CursorIterator[T]) Close() error {
	if it.state == StateClosed {
		return nil
	}
	if it.state == StateOpen || it.state == StateStreaming {
		it.log.DebugWith("stream closed early", map[string]interface{}{"yielded": it.yielded})
	}
	it.state = StateClosed
	return it.cur.release(it.ctx)
}
