// Package mssql registers the Microsoft SQL Server driver with the
// database registry.
package mssql

import (
	"context"
	"net/url"
	"strconv"

	_ "github.com/microsoft/go-mssqldb" // register "sqlserver" driver

	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/database/sqldb"
)

func init() {
	database.Register(database.DriverMSSQL, func(ctx context.Context, cfg *database.Config) (database.DB, error) {
		return New(ctx, cfg)
	})
}

// Dialect is the catalog and error mapping for SQL Server.
var Dialect = sqldb.Dialect{
	Driver:     database.DriverMSSQL,
	DriverName: "sqlserver",

	SchemasQuery: `
		SELECT name
		FROM sys.schemas
		ORDER BY name`,

	CurrentSchemaQuery: `SELECT SCHEMA_NAME()`,

	TablesQuery: `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1
		  AND TABLE_TYPE   = 'BASE TABLE'
		ORDER BY TABLE_NAME`,

	ColumnsQuery: `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			c.COLUMN_DEFAULT,
			CAST(c.CHARACTER_MAXIMUM_LENGTH AS BIGINT),
			CASE WHEN pk.COLUMN_NAME IS NULL THEN 0 ELSE 1 END
		FROM INFORMATION_SCHEMA.COLUMNS c

		LEFT JOIN (
			SELECT kcu.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
				AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
			  AND tc.TABLE_SCHEMA = @p1
			  AND tc.TABLE_NAME   = @p2
		) pk ON pk.COLUMN_NAME = c.COLUMN_NAME

		WHERE c.TABLE_SCHEMA = @p1
		  AND c.TABLE_NAME   = @p2
		ORDER BY c.ORDINAL_POSITION`,

	SystemSchemas: []string{
		"sys", "INFORMATION_SCHEMA", "guest",
		"db_owner", "db_accessadmin", "db_securityadmin", "db_ddladmin",
		"db_backupoperator", "db_datareader", "db_datawriter",
		"db_denydatareader", "db_denydatawriter",
	},

	MapError: mapError,
}

// New opens a SQL Server pool for cfg and pings it.
func New(ctx context.Context, cfg *database.Config) (*sqldb.DB, error) {
	return sqldb.Open(ctx, Dialect, buildDSN(cfg), cfg)
}

// buildDSN constructs a sqlserver:// URL with the database as a query
// parameter.
func buildDSN(cfg *database.Config) string {
	q := url.Values{}
	q.Set("database", cfg.DatabaseOrDefault())
	q.Set("app name", "dbconnector")
	if cfg.ConnectTimeout > 0 {
		q.Set("connection timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Address(),
		RawQuery: q.Encode(),
	}
	return u.String()
}
