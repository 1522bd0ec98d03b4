// Package sqldb implements database.DB on top of database/sql for the
// engines whose Go drivers plug into it (MySQL, SQL Server, Oracle).
//
// Each engine package supplies a Dialect: the driver name, its catalog
// queries and an error mapper. Pooling and row iteration are shared here.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
)

// Dialect describes the engine-specific parts of a database/sql backend.
type Dialect struct {
	// Driver is the dbconnector engine this dialect serves.
	Driver database.Driver

	// DriverName is the name registered with database/sql ("mysql", "sqlserver", "oracle").
	DriverName string

	// SchemasQuery returns one text column: every schema name.
	SchemasQuery string

	// CurrentSchemaQuery returns one row, one text column: the session schema.
	CurrentSchemaQuery string

	// TablesQuery takes the schema as its only argument and returns table names.
	TablesQuery string

	// ColumnsQuery takes (schema, table) and returns, in ordinal order:
	// name, data type, nullable (0/1), default (nullable text),
	// max length (nullable int), primary key (0/1).
	ColumnsQuery string

	// SystemSchemas are hidden from the structure tree.
	SystemSchemas []string

	// ReadOnlyTx is set when the driver honours sql.TxOptions.ReadOnly.
	ReadOnlyTx bool

	// MapError translates a native driver error into *errs.Error.
	MapError func(err error, msg string) *errs.Error
}

// DB is a database/sql implementation of database.DB.
// It is safe for concurrent use by multiple goroutines.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

var _ database.ReadOnlyQuerier = (*DB)(nil)

// Open opens a pool for dsn with the dialect's driver, applies pool tuning
// from cfg and pings before returning.
func Open(ctx context.Context, d Dialect, dsn string, cfg *database.Config) (*DB, error) {
	db, err := sql.Open(d.DriverName, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(int(cfg.MinConns))
	}
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	s := New(db, d)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := s.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an existing *sql.DB. Tests use it with go-sqlmock.
func New(db *sql.DB, d Dialect) *DB {
	if d.MapError == nil {
		d.MapError = MapCommonError
	}
	return &DB{db: db, dialect: d}
}

// --- database.DB implementation ---

func (s *DB) Driver() database.Driver { return s.dialect.Driver }

func (s *DB) SystemSchemas() []string { return s.dialect.SystemSchemas }

func (s *DB) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.dialect.MapError(err, "ping failed")
	}
	return nil
}

func (s *DB) Close() {
	_ = s.db.Close()
}

func (s *DB) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.dialect.MapError(err, "query failed")
	}
	return &sqlRows{rows: rows, mapError: s.dialect.MapError}, nil
}

// QueryReadOnly runs query in a read-only transaction that is rolled back
// when the Rows are closed. Dialects without ReadOnlyTx fall back to Query.
func (s *DB) QueryReadOnly(ctx context.Context, query string, args ...any) (database.Rows, error) {
	if !s.dialect.ReadOnlyTx {
		return s.Query(ctx, query, args...)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, s.dialect.MapError(err, "failed to begin read-only transaction")
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, s.dialect.MapError(err, "query failed")
	}
	return &sqlRows{rows: rows, mapError: s.dialect.MapError, tx: tx}, nil
}

func (s *DB) ListSchemas(ctx context.Context) ([]string, error) {
	return s.fetchStringList(ctx, s.dialect.SchemasQuery, "failed to list schemas")
}

func (s *DB) ListTables(ctx context.Context, schema string) ([]string, error) {
	schema, err := s.resolveSchema(ctx, schema)
	if err != nil {
		return nil, err
	}
	return s.fetchStringList(ctx, s.dialect.TablesQuery, "failed to list tables", schema)
}

func (s *DB) ListColumns(ctx context.Context, schema, table string) ([]database.ColumnInfo, error) {
	schema, err := s.resolveSchema(ctx, schema)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.ColumnsQuery, schema, table)
	if err != nil {
		return nil, s.dialect.MapError(err, fmt.Sprintf("failed to fetch columns of %s", table))
	}
	defer rows.Close()

	var cols []database.ColumnInfo
	for rows.Next() {
		var (
			c          database.ColumnInfo
			nullable   int64
			primaryKey int64
			defaultVal sql.NullString
			maxLen     sql.NullInt64
		)
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &defaultVal, &maxLen, &primaryKey); err != nil {
			return nil, s.dialect.MapError(err, "failed to scan column info")
		}
		c.IsNullable = nullable != 0
		c.IsPrimaryKey = primaryKey != 0
		if defaultVal.Valid {
			v := defaultVal.String
			c.DefaultValue = &v
		}
		if maxLen.Valid {
			n := maxLen.Int64
			c.MaxLength = &n
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.MapError(err, "error iterating columns")
	}
	return cols, nil
}

// resolveSchema turns "" into the session's current schema.
func (s *DB) resolveSchema(ctx context.Context, schema string) (string, error) {
	if schema != "" || s.dialect.CurrentSchemaQuery == "" {
		return schema, nil
	}
	var current sql.NullString
	if err := s.db.QueryRowContext(ctx, s.dialect.CurrentSchemaQuery).Scan(&current); err != nil {
		return "", s.dialect.MapError(err, "failed to resolve current schema")
	}
	return current.String, nil
}

// fetchStringList is a helper for queries that return a single text column.
func (s *DB) fetchStringList(ctx context.Context, q, errMsg string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.dialect.MapError(err, errMsg)
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, s.dialect.MapError(err, errMsg)
		}
		list = append(list, v)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.MapError(err, errMsg)
	}
	return list, nil
}

// --- sql.Rows wrapper ---

type sqlRows struct {
	rows     *sql.Rows
	mapError func(error, string) *errs.Error
	tx       *sql.Tx // rolled back on Close, may be nil
}

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Close() {
	_ = r.rows.Close()
	if r.tx != nil {
		_ = r.tx.Rollback()
		r.tx = nil
	}
}

func (r *sqlRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return r.mapError(err, "failed to scan row")
	}
	return nil
}

func (r *sqlRows) Columns() ([]string, error) {
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, r.mapError(err, "failed to read column names")
	}
	return cols, nil
}

func (r *sqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return r.mapError(err, "query failed")
	}
	return nil
}
