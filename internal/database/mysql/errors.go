package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/userstream/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied   = 1044
	errAccessDenied     = 1045
	errNoDBSelected     = 1046
	errUnknownDatabase  = 1049
	errTooManyConns     = 1040
	errUserConnLimit    = 1203
	errBadFieldError    = 1054
	errParseError       = 1064
	errNoSuchTable      = 1146
	errConnRefused      = 2003
	errServerGone       = 2006
	errServerLostInMid  = 2013
	errQueryInterrupted = 1317
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
// err must be non-nil.
func mapError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// mapConnectError is mapError for the connect path, where anything that is
// not a timeout means the session could not be established.
func mapConnectError(err error, msg string) *errs.Error {
	e := mapError(err, msg)
	if e.Kind != errs.ErrKindTimeout {
		e.Kind = errs.ErrKindConnectionFailed
	}
	return e
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
// An unknown database or a missing table counts as a connectivity failure:
// the stream has nothing to read from.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied:
		return errs.ErrKindPermissionDenied
	case errNoDBSelected, errUnknownDatabase, errNoSuchTable:
		return errs.ErrKindConnectionFailed
	case errTooManyConns, errUserConnLimit, errConnRefused, errServerGone, errServerLostInMid:
		return errs.ErrKindConnectionFailed
	case errQueryInterrupted:
		return errs.ErrKindTimeout
	case errBadFieldError, errParseError:
		return errs.ErrKindQueryFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
