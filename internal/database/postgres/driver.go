// Package postgres implements database.Connector for PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/errs"
	"github.com/koustreak/userstream/internal/logger"
)

const defaultPort = 5432

// Connector opens dedicated PostgreSQL sessions. There is no pool: every
// stream gets its own *pgx.Conn and closes it when the stream ends.
type Connector struct {
	cfg *database.Config
}

// New returns a Connector for cfg. No connection is made until Connect.
func New(cfg *database.Config) *Connector {
	return &Connector{cfg: cfg}
}

// Dialect implements database.Connector.
func (c *Connector) Dialect() database.Dialect {
	return database.DialectPostgres
}

// Connect opens a new connection and pings it.
func (c *Connector) Connect(ctx context.Context) (database.Conn, error) {
	connCfg, err := pgx.ParseConfig(buildDSN(c.cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	if c.cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = c.cfg.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, mapConnectError(err, "failed to connect to postgres")
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, mapConnectError(err, "ping failed")
	}

	logger.FromContext(ctx).DebugWith("postgres connection opened", map[string]interface{}{
		"host":     c.cfg.Host,
		"database": connCfg.Database,
	})

	return &Conn{conn: conn}, nil
}

// buildDSN constructs the postgres connection URL. Without UseDatabase the
// session lands in the server's default database for the user.
func buildDSN(cfg *database.Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
	}
	if cfg.UseDatabase {
		u.Path = "/" + cfg.Database
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Conn is one PostgreSQL session.
type Conn struct {
	conn *pgx.Conn

	once sync.Once
	err  error
}

// Query executes a SQL statement that returns multiple rows. pgx reads the
// result from the wire as Next is called.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

// Close ends the session. It is idempotent.
func (c *Conn) Close(ctx context.Context) error {
	c.once.Do(func() {
		if err := c.conn.Close(ctx); err != nil {
			c.err = mapError(err, "failed to close connection")
		}
	})
	return c.err
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Close()     { r.rows.Close() }

func (r *pgxRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
	}
	return nil
}

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "error during row iteration")
	}
	return nil
}

// --- error mapping ---

// PostgreSQL SQLSTATE codes that get special treatment.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInvalidCatalogName = "3D000" // database does not exist
	pgErrUndefinedTable     = "42P01"
	pgErrInsufficientPriv   = "42501"
	pgErrQueryCanceled      = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// err must be non-nil.
func mapError(err error, msg string) *errs.Error {
	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// mapConnectError is mapError for the connect path.
func mapConnectError(err error, msg string) *errs.Error {
	e := mapError(err, msg)
	if e.Kind != errs.ErrKindTimeout && e.Kind != errs.ErrKindPermissionDenied {
		e.Kind = errs.ErrKindConnectionFailed
	}
	return e
}

func classifySQLState(code string) errs.ErrKind {
	switch {
	case code == pgErrInvalidCatalogName, code == pgErrUndefinedTable:
		return errs.ErrKindConnectionFailed
	case code == pgErrInsufficientPriv, len(code) >= 2 && code[:2] == "28": // class 28: invalid authorization
		return errs.ErrKindPermissionDenied
	case code == pgErrQueryCanceled:
		return errs.ErrKindTimeout
	case len(code) >= 2 && code[:2] == "08": // class 08: connection exception
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
