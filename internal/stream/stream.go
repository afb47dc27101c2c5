// Package stream reads the user table without holding it in memory.
//
// A Streamer offers three ways to walk the table, each pull-based and each
// owning its own connection for as long as it runs:
//
//   - Rows: one row per Next over a single server-side result set.
//   - Batches: up to N rows per Next over a single server-side result set.
//   - Paginate / LazyPaginate: one LIMIT/OFFSET query per page, with no
//     connection held between pages.
//
// Ages and AverageAge compute a streaming aggregate over an age-only
// projection.
//
// Iterators capture the context they are created with. A connection is
// opened on the first Next, released as soon as the source is exhausted or
// a fetch fails, and in any case by Close. Close is idempotent; callers
// should always defer it:
//
//	it := s.Rows(ctx)
//	defer it.Close()
//	for it.Next() {
//	    row := it.Value()
//	}
//	if err := it.Err(); err != nil { ... }
//
// Iterators are not safe for concurrent use. Independent iterators may run
// concurrently since they share no state.
package stream

import (
	"context"

	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/errs"
	"github.com/koustreak/userstream/internal/logger"
)

// DefaultTable is the table the streamers read unless told otherwise.
const DefaultTable = "user_data"

// Streamer builds iterators over one table. It holds no connection itself.
type Streamer struct {
	connector database.Connector
	table     string
	orderBy   string
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithTable reads from table instead of DefaultTable.
func WithTable(table string) Option {
	return func(s *Streamer) { s.table = table }
}

// WithOrderBy sets the column every scan is ordered by. The default is
// user_id, which keeps pages contiguous and batch output aligned with row
// output. An empty column leaves rows in storage order.
func WithOrderBy(column string) Option {
	return func(s *Streamer) { s.orderBy = column }
}

// New returns a Streamer reading through c.
func New(c database.Connector, opts ...Option) *Streamer {
	s := &Streamer{
		connector: c,
		table:     DefaultTable,
		orderBy:   colUserID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns the table name the streamer reads.
func (s *Streamer) Table() string { return s.table }

func (s *Streamer) selectQuery(cols ...string) *database.SelectBuilder {
	b := database.Select(s.table, s.connector.Dialect()).Columns(cols...)
	if s.orderBy != "" {
		b.OrderBy(s.orderBy, database.Asc)
	}
	return b
}

func (s *Streamer) logger(ctx context.Context, component string) *logger.Logger {
	return logger.FromContext(ctx).With().
		Str("component", component).
		Str("table", s.table).
		Logger()
}

// wrap passes errors that already carry a kind through untouched and
// classifies everything else as kind.
func wrap(kind errs.ErrKind, msg string, err error) error {
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return errs.Wrap(kind, msg, err)
}

func checkSize(name string, n int) error {
	if n <= 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "%s must be > 0, got %d", name, n)
	}
	return nil
}
