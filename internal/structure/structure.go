// Package structure builds the schema → table → column tree shown in the
// database browser.
package structure

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Object kinds.
const (
	TypeSchema = "schema"
	TypeTable  = "table"
	TypeColumn = "column"
)

// DefaultConcurrency bounds concurrent column lookups per schema.
const DefaultConcurrency = 8

// ignoredSchemas are hidden for every engine, in addition to the driver's
// own SystemSchemas.
var ignoredSchemas = []string{
	"information_schema", "pg_catalog", "pg_toast", "sys", "mysql", "performance_schema",
}

// Object is one node of the tree. Children is nil for columns and for
// tables whose columns could not be read.
type Object struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Children []Object `json:"children"`
}

// Inspector walks a database's catalog.
type Inspector struct {
	// Concurrency bounds column lookups running at once; <= 0 means DefaultConcurrency.
	Concurrency int

	Log *logger.Logger
}

// Inspect walks db with default settings.
func Inspect(ctx context.Context, db database.DB, log *logger.Logger) ([]Object, error) {
	return (&Inspector{Log: log}).Inspect(ctx, db)
}

// Inspect returns one schema node per user schema that has tables. When
// schemas cannot be listed, the current schema's tables are returned at the
// top level instead. Tables or columns that cannot be read are logged and
// skipped; only cancellation of ctx is reported as an error.
func (in *Inspector) Inspect(ctx context.Context, db database.DB) ([]Object, error) {
	log := in.Log
	if log == nil {
		log = logger.Nop()
	}

	schemas, err := db.ListSchemas(ctx)
	if err != nil {
		log.WarnWith("could not list schemas, using current schema", err, nil)
		schemas = []string{""}
	}

	skip := skipSet(db.SystemSchemas())

	var out []Object
	for _, schema := range schemas {
		if _, ok := skip[strings.ToLower(schema)]; ok {
			continue
		}

		tables := in.tables(ctx, db, schema, log)
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.ErrKindTimeout, "structure inspection aborted", err)
		}
		if len(tables) == 0 {
			continue
		}

		if schema == "" {
			out = append(out, tables...)
			continue
		}
		out = append(out, Object{Name: schema, Type: TypeSchema, Children: tables})
	}

	return out, nil
}

// tables lists schema's tables and fetches their columns concurrently.
// The result keeps the driver's table order.
func (in *Inspector) tables(ctx context.Context, db database.DB, schema string, log *logger.Logger) []Object {
	names, err := db.ListTables(ctx, schema)
	if err != nil {
		log.WarnWith("could not get tables", err, map[string]interface{}{"schema": schema})
		return nil
	}

	limit := in.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	tables := make([]Object, len(names))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, name := range names {
		i, name := i, name // per-iteration copies (go 1.21 loop semantics)
		tables[i] = Object{Name: name, Type: TypeTable}
		g.Go(func() error {
			cols, err := db.ListColumns(ctx, schema, name)
			if err != nil {
				log.WarnWith("could not get columns", err, map[string]interface{}{
					"schema": schema, "table": name,
				})
				return nil
			}
			tables[i].Children = columnNodes(cols)
			return nil
		})
	}
	_ = g.Wait()

	return tables
}

func columnNodes(cols []database.ColumnInfo) []Object {
	if len(cols) == 0 {
		return nil
	}
	nodes := make([]Object, len(cols))
	for i, c := range cols {
		nodes[i] = Object{Name: fmt.Sprintf("%s (%s)", c.Name, c.TypeName()), Type: TypeColumn}
	}
	return nodes
}

func skipSet(system []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ignoredSchemas)+len(system))
	for _, s := range ignoredSchemas {
		set[s] = struct{}{}
	}
	for _, s := range system {
		set[strings.ToLower(s)] = struct{}{}
	}
	return set
}
