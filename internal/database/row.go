package database

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"net/netip"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/koustreak/dbconnector/internal/errs"
)

// TimestampLayout is how date/time cells are rendered in results and exports.
const TimestampLayout = "2006-01-02 15:04:05.999999"

// ScanValues reads the current row into a slice of Go-native values, one per
// column. n must equal the number of result columns.
func ScanValues(rows Rows, n int) ([]any, error) {
	// Allocate scan targets as *any so the driver can write any type.
	dest := make([]any, n)
	destPtrs := make([]any, n)
	for i := range dest {
		destPtrs[i] = &dest[i]
	}

	if err := rows.Scan(destPtrs...); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
	}
	return dest, nil
}

// NormalizeValue turns a driver value into something that JSON-encodes as a
// scalar: nil, string, bool or a number. Anything else becomes its string form.
// Bytes that are not valid UTF-8 (binary columns, SQL Server
// uniqueidentifier) are rendered as 0x-prefixed hex.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case float32:
		return normalizeFloat(float64(val), val)
	case float64:
		return normalizeFloat(val, val)
	case []byte:
		if !utf8.Valid(val) {
			return "0x" + hex.EncodeToString(val)
		}
		return string(val)
	case time.Time:
		return val.Format(TimestampLayout)
	case [16]byte:
		return uuid.UUID(val).String()
	case *big.Int:
		return val.String()
	case netip.Prefix:
		return val.String()
	case netip.Addr:
		return val.String()
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if _, again := inner.(driver.Valuer); again {
			return fmt.Sprint(inner)
		}
		return NormalizeValue(inner)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

// normalizeFloat keeps finite floats as numbers; NaN and ±Inf are not
// representable in JSON and are returned as text.
func normalizeFloat(f float64, orig any) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return orig
}

// FormatCell renders a normalized value as text; NULL becomes "".
func FormatCell(v any) string {
	switch val := NormalizeValue(v).(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
