// Package mysql implements database.Connector for MySQL on top of
// database/sql and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/errs"
	"github.com/koustreak/userstream/internal/logger"
)

// Connector opens dedicated MySQL sessions.
// It is safe for concurrent use; each Connect returns an independent session.
type Connector struct {
	cfg *database.Config
}

// New returns a Connector for cfg. No connection is made until Connect.
func New(cfg *database.Config) *Connector {
	return &Connector{cfg: cfg}
}

// Dialect implements database.Connector.
func (c *Connector) Dialect() database.Dialect {
	return database.DialectMySQL
}

// Connect opens a single pinned connection and pings it.
func (c *Connector) Connect(ctx context.Context) (database.Conn, error) {
	connector, err := mysql.NewConnector(buildConfig(c.cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid mysql config", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	connectCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := db.Conn(connectCtx)
	if err != nil {
		_ = db.Close()
		return nil, mapConnectError(err, "failed to connect to mysql")
	}
	if err := conn.PingContext(connectCtx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, mapConnectError(err, "ping failed")
	}

	logger.FromContext(ctx).DebugWith("mysql connection opened", map[string]interface{}{
		"addr":     addr(c.cfg),
		"database": c.cfg.Database,
	})

	return &Conn{db: db, conn: conn}, nil
}

// buildConfig maps database.Config onto the driver's own config type.
func buildConfig(cfg *database.Config) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = addr(cfg)
	if cfg.UseDatabase {
		mc.DBName = cfg.Database
	}
	mc.ParseTime = true
	mc.Timeout = cfg.ConnectTimeout
	return mc
}

func addr(cfg *database.Config) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(port))
}

const defaultPort = 3306

// Conn is one MySQL session. Queries run on the pinned *sql.Conn so the
// result set streams from the server over that connection only.
type Conn struct {
	db   *sql.DB
	conn *sql.Conn

	once sync.Once
	err  error
}

// Query implements database.Conn.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &mysqlRows{rows: rows}, nil
}

// Close releases the connection. It is idempotent.
func (c *Conn) Close(_ context.Context) error {
	c.once.Do(func() {
		cerr := c.conn.Close()
		derr := c.db.Close()
		if cerr == nil {
			cerr = derr
		}
		if cerr != nil {
			c.err = mapError(cerr, "failed to close connection")
		}
	})
	return c.err
}

// --- sql.Rows wrapper ---

type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool { return r.rows.Next() }
func (r *mysqlRows) Close()     { _ = r.rows.Close() }

func (r *mysqlRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
	}
	return nil
}

func (r *mysqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "error during row iteration")
	}
	return nil
}
