package database

import (
	"context"
	"fmt"
	"strings"
)

// DB is the central contract for all database operations.
// All layers above this package talk only to this interface;
// they never import the postgres, mysql, mssql or oracle packages directly.
type DB interface {
	// Driver reports which engine this connection talks to.
	Driver() Driver

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Query executes a SQL statement and returns its result set.
	// Statements that produce no result set return Rows with no columns.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// ListSchemas returns every schema (MySQL: database, Oracle: owner)
	// visible to the connected user.
	ListSchemas(ctx context.Context) ([]string, error)

	// ListTables returns base table names in schema.
	// An empty schema means the session's current schema.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// ListColumns returns the columns of schema.table in ordinal order.
	ListColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error)

	// SystemSchemas names the engine's built-in schemas, hidden from the tree.
	SystemSchemas() []string
}

// ReadOnlyQuerier is implemented by drivers that can run a statement inside
// a read-only transaction. The transaction ends when the Rows are closed.
type ReadOnlyQuerier interface {
	QueryReadOnly(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name         string
	DataType     string
	IsNullable   bool
	IsPrimaryKey bool
	DefaultValue *string // nil if no default
	MaxLength    *int64  // nil for non-char types
}

// TypeName renders the column type the way schema browsers show it,
// e.g. "varchar(255)" or "integer".
func (c ColumnInfo) TypeName() string {
	t := strings.ToLower(c.DataType)
	if t == "" {
		t = "unknown"
	}
	if c.MaxLength != nil && *c.MaxLength > 0 && !strings.Contains(t, "(") {
		return fmt.Sprintf("%s(%d)", t, *c.MaxLength)
	}
	return t
}

// PingQuery is the cheapest statement that proves a session works.
func PingQuery(d Driver) string {
	if d == DriverOracle {
		return "SELECT 1 FROM DUAL"
	}
	return "SELECT 1"
}
