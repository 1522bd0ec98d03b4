// Package mysql registers the MySQL / MariaDB driver with the database
// registry. Schemas are MySQL databases.
package mysql

import (
	"context"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/database/sqldb"
)

func init() {
	database.Register(database.DriverMySQL, func(ctx context.Context, cfg *database.Config) (database.DB, error) {
		return New(ctx, cfg)
	})
}

// Dialect is the catalog and error mapping for MySQL.
var Dialect = sqldb.Dialect{
	Driver:     database.DriverMySQL,
	DriverName: "mysql",
	ReadOnlyTx: true,

	SchemasQuery: `
		SELECT SCHEMA_NAME
		FROM information_schema.SCHEMATA
		ORDER BY SCHEMA_NAME`,

	CurrentSchemaQuery: `SELECT DATABASE()`,

	TablesQuery: `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_TYPE   = 'BASE TABLE'
		ORDER BY TABLE_NAME`,

	ColumnsQuery: `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			CASE WHEN IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			COLUMN_DEFAULT,
			CHARACTER_MAXIMUM_LENGTH,
			CASE WHEN COLUMN_KEY = 'PRI' THEN 1 ELSE 0 END
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_NAME   = ?
		ORDER BY ORDINAL_POSITION`,

	SystemSchemas: []string{"information_schema", "mysql", "performance_schema", "sys"},

	MapError: mapError,
}

// New opens a MySQL pool for cfg and pings it.
func New(ctx context.Context, cfg *database.Config) (*sqldb.DB, error) {
	return sqldb.Open(ctx, Dialect, buildDSN(cfg), cfg)
}

// buildDSN renders cfg in go-sql-driver's DSN format. parseTime makes
// DATETIME columns arrive as time.Time.
func buildDSN(cfg *database.Config) string {
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Address()
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Timeout = cfg.ConnectTimeout
	return mc.FormatDSN()
}
