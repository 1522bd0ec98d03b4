// Package oracle registers the Oracle Database driver with the database
// registry. Schemas are Oracle users; Config.Database is the service name.
package oracle

import (
	"context"

	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/database/sqldb"
	goora "github.com/sijms/go-ora/v2"
)

func init() {
	database.Register(database.DriverOracle, func(ctx context.Context, cfg *database.Config) (database.DB, error) {
		return New(ctx, cfg)
	})
}

// Dialect is the catalog and error mapping for Oracle.
var Dialect = sqldb.Dialect{
	Driver:     database.DriverOracle,
	DriverName: "oracle",

	SchemasQuery: `
		SELECT username
		FROM all_users
		WHERE oracle_maintained = 'N'
		ORDER BY username`,

	CurrentSchemaQuery: `SELECT SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA') FROM DUAL`,

	TablesQuery: `
		SELECT table_name
		FROM all_tables
		WHERE owner = :1
		ORDER BY table_name`,

	ColumnsQuery: `
		SELECT
			c.column_name,
			c.data_type,
			CASE WHEN c.nullable = 'Y' THEN 1 ELSE 0 END,
			c.data_default,
			CASE WHEN c.char_length > 0 THEN c.char_length END,
			CASE WHEN EXISTS (
				SELECT 1
				FROM all_constraints ac
				JOIN all_cons_columns acc
					ON ac.owner = acc.owner
					AND ac.constraint_name = acc.constraint_name
				WHERE ac.constraint_type = 'P'
				  AND ac.owner = c.owner
				  AND ac.table_name = c.table_name
				  AND acc.column_name = c.column_name
			) THEN 1 ELSE 0 END
		FROM all_tab_columns c
		WHERE c.owner = :1
		  AND c.table_name = :2
		ORDER BY c.column_id`,

	SystemSchemas: []string{
		"SYS", "SYSTEM", "OUTLN", "XDB", "DBSNMP", "APPQOSSYS", "AUDSYS",
		"CTXSYS", "DVSYS", "GSMADMIN_INTERNAL", "LBACSYS", "MDSYS",
		"OJVMSYS", "OLAPSYS", "ORDDATA", "ORDSYS", "WMSYS",
	},

	MapError: mapError,
}

// New opens an Oracle pool for cfg and pings it.
func New(ctx context.Context, cfg *database.Config) (*sqldb.DB, error) {
	return sqldb.Open(ctx, Dialect, buildDSN(cfg), cfg)
}

func buildDSN(cfg *database.Config) string {
	return goora.BuildUrl(cfg.Host, cfg.PortOrDefault(), cfg.DatabaseOrDefault(), cfg.User, cfg.Password, nil)
}
