package oracle

import (
	"errors"

	"github.com/koustreak/dbconnector/internal/database/sqldb"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/sijms/go-ora/v2/network"
)

// ORA- error codes
// Full list: https://docs.oracle.com/en/database/oracle/oracle-database/19/errmg/
const (
	errUserCancel         = 1013
	errInvalidLogin       = 1017
	errNoPrivileges       = 1031
	errLockTimeout        = 30006
	errAccountLocked      = 28000
	errListenerNoService  = 12514
	errListenerNoSID      = 12505
	errConnectTimeout     = 12170
	errNoListener         = 12541
	errCallTimeoutExpired = 3136
)

// mapError converts a go-ora error into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		return errs.Wrap(classifyORACode(oraErr.ErrCode), msg, err)
	}

	return sqldb.MapCommonError(err, msg)
}

func classifyORACode(code int) errs.ErrKind {
	switch code {
	case errInvalidLogin, errNoPrivileges, errAccountLocked:
		return errs.ErrKindPermissionDenied
	case errListenerNoService, errListenerNoSID, errConnectTimeout, errNoListener:
		return errs.ErrKindConnectionFailed
	case errUserCancel, errLockTimeout, errCallTimeoutExpired:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
