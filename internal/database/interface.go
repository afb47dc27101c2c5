package database

import "context"

// Connector opens database sessions. Every call to Connect returns a new,
// independent connection that the caller owns exclusively and must close.
// Layers above this package talk only to Connector and Conn; they never
// import the mysql or postgres packages directly.
type Connector interface {
	// Connect establishes a session to the target database.
	Connect(ctx context.Context) (Conn, error)

	// Dialect reports the SQL flavour the connections speak.
	Dialect() Dialect
}

// Conn is a single database session.
type Conn interface {
	// Query executes a SQL statement that returns multiple rows.
	// Rows are fetched from the server as the caller advances, not up front.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// Close ends the session. Calling it more than once is safe.
	Close(ctx context.Context) error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}
