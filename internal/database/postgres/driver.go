package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
)

func init() {
	database.Register(database.DriverPostgres, func(ctx context.Context, cfg *database.Config) (database.DB, error) {
		return New(ctx, cfg)
	})
}

// systemSchemas are hidden from the structure tree.
var systemSchemas = []string{"information_schema", "pg_catalog", "pg_toast"}

// Driver is a PostgreSQL implementation of database.DB backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool *pgxpool.Pool
}

var _ database.ReadOnlyQuerier = (*Driver)(nil)

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid postgres config", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	d := &Driver{pool: pool}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := d.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// --- database.DB implementation ---

func (d *Driver) Driver() database.Driver { return database.DriverPostgres }

func (d *Driver) SystemSchemas() []string { return systemSchemas }

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool.
func (d *Driver) Close() {
	d.pool.Close()
}

// Query executes a SQL statement. Statements without a result set (INSERT,
// DDL, …) yield Rows with no columns.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

// QueryReadOnly runs sql inside BEGIN READ ONLY. The transaction is rolled
// back when the Rows are closed.
func (d *Driver) QueryReadOnly(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, mapError(err, "failed to begin read-only transaction")
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		_ = tx.Rollback(context.Background())
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows, tx: tx}, nil
}

// ListSchemas returns every schema visible to the current user.
func (d *Driver) ListSchemas(ctx context.Context) ([]string, error) {
	const q = `
		SELECT schema_name::text
		FROM information_schema.schemata
		ORDER BY schema_name`

	return d.fetchStringList(ctx, q, "failed to list schemas")
}

// ListTables returns base table names in schema ("" = current_schema()).
func (d *Driver) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name::text
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	return d.fetchStringList(ctx, q, "failed to list tables", schema)
}

// ListColumns returns column details for schema.table in ordinal order.
func (d *Driver) ListColumns(ctx context.Context, schema, table string) ([]database.ColumnInfo, error) {
	const q = `
		SELECT
			c.column_name::text,
			c.data_type::text,
			c.is_nullable = 'YES'                AS is_nullable,
			c.column_default::text,
			c.character_maximum_length::int4,
			COALESCE(pk.is_pk, false)  AS is_primary_key
		FROM information_schema.columns c

		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = COALESCE(NULLIF($1, ''), current_schema())
			  AND tc.table_name   = $2
		) pk ON pk.column_name = c.column_name

		WHERE c.table_schema = COALESCE(NULLIF($1, ''), current_schema())
		  AND c.table_name   = $2
		ORDER BY c.ordinal_position`

	rows, err := d.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("failed to fetch columns of %s", table))
	}
	defer rows.Close()

	var cols []database.ColumnInfo
	for rows.Next() {
		var c database.ColumnInfo
		var maxLen *int32
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.DefaultValue, &maxLen, &c.IsPrimaryKey); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		if maxLen != nil {
			n := int64(*maxLen)
			c.MaxLength = &n
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	return cols, nil
}

// fetchStringList is a helper for queries that return a single text column.
func (d *Driver) fetchStringList(ctx context.Context, q, errMsg string, args ...any) ([]string, error) {
	rows, err := d.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, errMsg)
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, mapError(err, errMsg)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, errMsg)
	}
	return list, nil
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
	tx   pgx.Tx // rolled back on Close, may be nil
}

func (r *pgxRows) Next() bool { return r.rows.Next() }

func (r *pgxRows) Close() {
	r.rows.Close()
	if r.tx != nil {
		_ = r.tx.Rollback(context.Background())
		r.tx = nil
	}
}

func (r *pgxRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "failed to scan row")
	}
	return nil
}

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "query failed")
	}
	return nil
}

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

// --- error mapping ---

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), msg, err)
	}

	// Fallthrough: connection-level errors (TLS, network, DNS)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifySQLState maps a SQLSTATE code to an ErrKind by its class.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
func classifySQLState(code string) errs.ErrKind {
	switch {
	case code == "57014": // query_canceled (statement_timeout)
		return errs.ErrKindTimeout
	case code == "42501": // insufficient_privilege
		return errs.ErrKindPermissionDenied
	case strings.HasPrefix(code, "28"): // invalid authorization
		return errs.ErrKindPermissionDenied
	case strings.HasPrefix(code, "08"), // connection exception
		strings.HasPrefix(code, "53"), // insufficient resources
		strings.HasPrefix(code, "57"), // operator intervention
		strings.HasPrefix(code, "3D"): // database does not exist
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
