package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
)

// Result is a canned result set returned by FakeDB.Query.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Call records one FakeDB.Query invocation.
type Call struct {
	SQL  string
	Args []any
}

// FakeDB is an in-memory database.DB. Zero values behave like an empty
// but healthy server. It is safe for concurrent use.
type FakeDB struct {
	Engine database.Driver

	Schemas    []string
	SchemasErr error

	// Tables and Columns are keyed by schema and "schema.table".
	Tables     map[string][]string
	TablesErr  map[string]error
	Columns    map[string][]database.ColumnInfo
	ColumnsErr map[string]error

	System []string

	// Results maps SQL text to its result set.
	Results  map[string]Result
	QueryErr error
	PingErr  error

	mu     sync.Mutex
	calls  []Call
	closed bool
}

var _ database.DB = (*FakeDB)(nil)

func (f *FakeDB) Driver() database.Driver {
	if f.Engine == "" {
		return database.DriverPostgres
	}
	return f.Engine
}

func (f *FakeDB) Ping(context.Context) error { return f.PingErr }

func (f *FakeDB) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// Closed reports whether Close was called.
func (f *FakeDB) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Calls returns every Query invocation so far.
func (f *FakeDB) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeDB) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{SQL: sql, Args: args})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "query failed", err)
	}
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	if res, ok := f.Results[sql]; ok {
		return &FakeRows{cols: res.Columns, rows: res.Rows}, nil
	}
	if sql == database.PingQuery(f.Driver()) {
		return &FakeRows{cols: []string{"?column?"}, rows: [][]any{{int64(1)}}}, nil
	}
	return nil, errs.Newf(errs.ErrKindQueryFailed, "no result registered for %q", sql)
}

func (f *FakeDB) ListSchemas(context.Context) ([]string, error) {
	return f.Schemas, f.SchemasErr
}

func (f *FakeDB) ListTables(_ context.Context, schema string) ([]string, error) {
	if err := f.TablesErr[schema]; err != nil {
		return nil, err
	}
	return f.Tables[schema], nil
}

func (f *FakeDB) ListColumns(_ context.Context, schema, table string) ([]database.ColumnInfo, error) {
	key := schema + "." + table
	if err := f.ColumnsErr[key]; err != nil {
		return nil, err
	}
	return f.Columns[key], nil
}

func (f *FakeDB) SystemSchemas() []string { return f.System }

// FakeRows iterates a canned result set.
type FakeRows struct {
	cols []string
	rows [][]any
	pos  int
}

// NewRows returns Rows over the given columns and values.
func NewRows(cols []string, rows ...[]any) *FakeRows {
	return &FakeRows{cols: cols, rows: rows}
}

func (r *FakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *FakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return errs.Newf(errs.ErrKindQueryFailed, "expected %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *any:
			*p = row[i]
		case *int64:
			n, ok := row[i].(int64)
			if !ok {
				return errs.Newf(errs.ErrKindQueryFailed, "column %d is %T, not int64", i, row[i])
			}
			*p = n
		case *string:
			*p = fmt.Sprint(row[i])
		default:
			return errs.Newf(errs.ErrKindQueryFailed, "unsupported scan destination %T", d)
		}
	}
	return nil
}

func (r *FakeRows) Columns() ([]string, error) { return r.cols, nil }
func (r *FakeRows) Close()                     {}
func (r *FakeRows) Err() error                 { return nil }
