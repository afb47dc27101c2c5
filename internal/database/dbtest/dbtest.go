// Package dbtest provides an in-memory database.Connector for tests.
//
// The double understands exactly the SQL the streamers emit: a projection
// over one table with optional LIMIT/OFFSET arguments, and the
// information_schema column lookup. It counts connections and result sets
// so tests can assert that nothing leaks.
package dbtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/errs"
)

// Record is one row of the fake user table.
type Record struct {
	UserID string
	Name   string
	Email  string
	Age    any
}

func (r Record) column(name string) (any, bool) {
	switch name {
	case "user_id":
		return r.UserID, true
	case "name":
		return r.Name, true
	case "email":
		return r.Email, true
	case "age":
		return r.Age, true
	}
	return nil, false
}

// DefaultColumns is the column set of the user table.
var DefaultColumns = []string{"user_id", "name", "email", "age"}

// Connector is the fake. The zero value serves an empty "user_data" table
// in the MySQL dialect.
type Connector struct {
	// Records are served in slice order.
	Records []Record
	// Table is the only table that exists. Defaults to "user_data".
	Table string
	// Columns reported by information_schema. Defaults to DefaultColumns.
	Columns []string
	// SQLDialect is returned from Dialect.
	SQLDialect database.Dialect

	// ConnectErr makes every Connect fail.
	ConnectErr error
	// QueryErr makes every Query fail.
	QueryErr error
	// FailAfter, when positive, makes a result set fail with FailErr after
	// that many rows were delivered.
	FailAfter int
	FailErr   error

	mu         sync.Mutex
	attempts   int
	opened     int
	closed     int
	rowsOpened int
	rowsClosed int
	queries    []string
}

// New returns a Connector serving records.
func New(records ...Record) *Connector {
	return &Connector{Records: records}
}

// Dialect implements database.Connector.
func (c *Connector) Dialect() database.Dialect { return c.SQLDialect }

// Connect implements database.Connector.
func (c *Connector) Connect(ctx context.Context) (database.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts++
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "connect canceled", err)
	}
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	c.opened++
	return &conn{c: c}, nil
}

// Attempts is the number of Connect calls, successful or not.
func (c *Connector) Attempts() int { c.mu.Lock(); defer c.mu.Unlock(); return c.attempts }

// Opened is the number of connections handed out.
func (c *Connector) Opened() int { c.mu.Lock(); defer c.mu.Unlock(); return c.opened }

// Closed is the number of connections closed.
func (c *Connector) Closed() int { c.mu.Lock(); defer c.mu.Unlock(); return c.closed }

// OpenResultSets is the number of result sets not yet closed.
func (c *Connector) OpenResultSets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rowsOpened - c.rowsClosed
}

// Queries returns every SQL statement executed, in order.
func (c *Connector) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func (c *Connector) table() string {
	if c.Table == "" {
		return "user_data"
	}
	return c.Table
}

func (c *Connector) columns() []string {
	if c.Columns == nil {
		return DefaultColumns
	}
	return c.Columns
}

type conn struct {
	c      *Connector
	closed bool
}

func (cn *conn) Close(_ context.Context) error {
	cn.c.mu.Lock()
	defer cn.c.mu.Unlock()
	if !cn.closed {
		cn.closed = true
		cn.c.closed++
	}
	return nil
}

func (cn *conn) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	c := cn.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries = append(c.queries, sql)
	if cn.closed {
		return nil, errs.New(errs.ErrKindConnectionFailed, "connection is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "query canceled", err)
	}
	if c.QueryErr != nil {
		return nil, c.QueryErr
	}

	var r *rows
	if strings.Contains(sql, "information_schema.columns") {
		r = c.columnRows(args)
	} else {
		var err error
		if r, err = c.selectRows(sql, args); err != nil {
			return nil, err
		}
	}
	c.rowsOpened++
	return r, nil
}

func (c *Connector) columnRows(args []any) *rows {
	r := &rows{c: c, columns: []string{"column_name", "data_type", "nullable"}}
	var name string
	switch len(args) {
	case 1:
		name, _ = args[0].(string)
	case 2:
		schema, _ := args[0].(string)
		table, _ := args[1].(string)
		name = schema + "." + table
	}
	if name == c.table() {
		for _, col := range c.columns() {
			r.data = append(r.data, []any{col, "varchar", false})
		}
	}
	return r
}

func (c *Connector) selectRows(sql string, args []any) (*rows, error) {
	cols, table, err := parseSelect(sql)
	if err != nil {
		return nil, err
	}
	if table != c.table() {
		return nil, errs.Newf(errs.ErrKindConnectionFailed, "table %q doesn't exist", table)
	}

	records := c.Records
	if strings.Contains(sql, " LIMIT ") && strings.Contains(sql, " OFFSET ") && len(args) >= 2 {
		limit, _ := args[len(args)-2].(int)
		offset, _ := args[len(args)-1].(int)
		records = window(records, limit, offset)
	}

	r := &rows{c: c, columns: cols, failAfter: c.FailAfter, failErr: c.FailErr}
	for _, rec := range records {
		vals := make([]any, len(cols))
		for i, col := range cols {
			v, ok := rec.column(col)
			if !ok {
				return nil, errs.Newf(errs.ErrKindQueryFailed, "unknown column %q", col)
			}
			vals[i] = v
		}
		r.data = append(r.data, vals)
	}
	return r, nil
}

func window(records []Record, limit, offset int) []Record {
	if offset >= len(records) {
		return nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

// parseSelect pulls the column list and table out of
// "SELECT a, b FROM t ..." as produced by database.SelectBuilder.
func parseSelect(sql string) ([]string, string, error) {
	const selectKw, fromKw = "SELECT ", " FROM "
	from := strings.Index(sql, fromKw)
	if !strings.HasPrefix(sql, selectKw) || from < 0 {
		return nil, "", errs.Newf(errs.ErrKindQueryFailed, "unsupported statement: %s", sql)
	}

	var cols []string
	list := sql[len(selectKw):from]
	if strings.TrimSpace(list) == "*" {
		cols = DefaultColumns
	} else {
		for _, p := range strings.Split(list, ",") {
			cols = append(cols, unquote(p))
		}
	}

	rest := strings.Fields(sql[from+len(fromKw):])
	if len(rest) == 0 {
		return nil, "", errs.New(errs.ErrKindQueryFailed, "missing table")
	}
	return cols, unquote(rest[0]), nil
}

var quotes = strings.NewReplacer("`", "", `"`, "")

// unquote strips identifier quoting, including around each part of a
// dotted name.
func unquote(s string) string {
	return quotes.Replace(strings.TrimSpace(s))
}

type rows struct {
	c         *Connector
	columns   []string
	data      [][]any
	pos       int
	cur       []any
	failAfter int
	failErr   error
	err       error
	closed    bool
}

func (r *rows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	if r.failAfter > 0 && r.pos >= r.failAfter {
		r.err = r.failErr
		if r.err == nil {
			r.err = errs.New(errs.ErrKindConnectionFailed, "connection lost")
		}
		return false
	}
	if r.pos >= len(r.data) {
		return false
	}
	r.cur = r.data[r.pos]
	r.pos++
	return true
}

func (r *rows) Scan(dest ...any) error {
	if r.cur == nil {
		return errs.New(errs.ErrKindQueryFailed, "scan called without a current row")
	}
	if len(dest) != len(r.cur) {
		return errs.Newf(errs.ErrKindQueryFailed, "expected %d destinations, got %d", len(r.cur), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, r.cur[i]); err != nil {
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("column %s", r.columns[i]), err)
		}
	}
	return nil
}

func assign(dest, v any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	target := dv.Elem()
	if v == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	sv := reflect.ValueOf(v)
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case sv.Type().ConvertibleTo(target.Type()) && (sv.Kind() == reflect.String) == (target.Kind() == reflect.String):
		target.Set(sv.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot scan %T into %s", v, target.Type())
	}
	return nil
}

func (r *rows) Err() error { return r.err }

func (r *rows) Close() {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.c.rowsClosed++
	}
}
