package mssql

import (
	"errors"

	"github.com/koustreak/dbconnector/internal/database/sqldb"
	"github.com/koustreak/dbconnector/internal/errs"
	gomssql "github.com/microsoft/go-mssqldb"
)

// SQL Server error numbers
// Full list: https://learn.microsoft.com/sql/relational-databases/errors-events/database-engine-events-and-errors
const (
	errPermissionDenied       = 229
	errColumnPermissionDenied = 230
	errServerPrincipal        = 916
	errLockTimeout            = 1222
	errCannotOpenDatabase     = 4060
	errLoginFailed            = 18456
)

// mapError converts a go-mssqldb error into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	var msErr gomssql.Error
	if errors.As(err, &msErr) {
		return errs.Wrap(classifyErrorNumber(msErr.Number), msg, err)
	}

	return sqldb.MapCommonError(err, msg)
}

func classifyErrorNumber(n int32) errs.ErrKind {
	switch n {
	case errPermissionDenied, errColumnPermissionDenied, errServerPrincipal, errLoginFailed:
		return errs.ErrKindPermissionDenied
	case errCannotOpenDatabase:
		return errs.ErrKindConnectionFailed
	case errLockTimeout:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
