package mysql

import (
	"errors"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/dbconnector/internal/database/sqldb"
	"github.com/koustreak/dbconnector/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied     = 1044
	errAccessDenied       = 1045
	errUnknownDatabase    = 1049
	errTableAccessDenied  = 1142
	errColumnAccessDenied = 1143
	errLockWaitTimeout    = 1205
	errQueryInterrupted   = 1317
	errTooManyConnections = 1040
	errMaxExecutionTime   = 3024
)

// mapError converts a go-sql-driver error into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return errs.Wrap(classifyMySQLCode(myErr.Number), msg, err)
	}

	if errors.Is(err, gomysql.ErrInvalidConn) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return sqldb.MapCommonError(err, msg)
}

func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errAccessDenied, errDBAccessDenied, errTableAccessDenied, errColumnAccessDenied:
		return errs.ErrKindPermissionDenied
	case errUnknownDatabase, errTooManyConnections:
		return errs.ErrKindConnectionFailed
	case errLockWaitTimeout, errQueryInterrupted, errMaxExecutionTime:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
