// Command dbconnector serves the DB Connector REST API.
package main

import (
	"os"

	"github.com/koustreak/dbconnector/internal/cli"

	// Register database drivers via init().
	_ "github.com/koustreak/dbconnector/internal/database/mssql"
	_ "github.com/koustreak/dbconnector/internal/database/mysql"
	_ "github.com/koustreak/dbconnector/internal/database/oracle"
	_ "github.com/koustreak/dbconnector/internal/database/postgres"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
