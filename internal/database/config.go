package database

import (
	"time"

	"github.com/koustreak/userstream/internal/errs"
)

// Driver identifies the database engine.
type Driver string

const (
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
)

// Dialect returns the SQL dialect spoken by the driver.
func (d Driver) Dialect() Dialect {
	if d == DriverPostgres {
		return DialectPostgres
	}
	return DialectMySQL
}

// Config holds everything needed to open one connection.
// Streamers open a fresh connection per stream, so there are no pool
// settings here.
type Config struct {
	Driver Driver

	Host     string
	Port     int
	User     string
	Password string

	// Database is the schema to select after connecting.
	Database string
	// UseDatabase controls whether Database is selected at all. When false
	// the session connects to the server without a default schema.
	UseDatabase bool

	// SSLMode is passed through to PostgreSQL ("disable", "require", …).
	SSLMode string

	// Timeouts
	ConnectTimeout time.Duration // time limit for establishing a connection
}

// DefaultConfig returns settings for a local MySQL server hosting the
// ALX_prodev database.
func DefaultConfig() *Config {
	return &Config{
		Driver:         DriverMySQL,
		Host:           "localhost",
		Port:           3306,
		User:           "root",
		Database:       "ALX_prodev",
		UseDatabase:    true,
		SSLMode:        "disable",
		ConnectTimeout: 10 * time.Second,
	}
}

// Validate checks the fields every driver depends on.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported driver %q", c.Driver)
	}
	if c.Host == "" {
		return errs.New(errs.ErrKindInvalidInput, "database host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid database port %d", c.Port)
	}
	if c.UseDatabase && c.Database == "" {
		return errs.New(errs.ErrKindInvalidInput, "database name is required when use_database is set")
	}
	return nil
}
