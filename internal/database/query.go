package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/dbconnector/internal/errs"
)

// Dialect controls identifier quoting, placeholders and paging syntax.
type Dialect int

const (
	// DialectPostgres uses "ident", $1 placeholders and LIMIT/OFFSET.
	DialectPostgres Dialect = iota

	// DialectMySQL uses `ident`, ? placeholders and LIMIT/OFFSET.
	DialectMySQL

	// DialectMSSQL uses [ident], @p1 placeholders and OFFSET/FETCH.
	DialectMSSQL

	// DialectOracle uses "ident", :1 placeholders and OFFSET/FETCH.
	DialectOracle
)

// DialectFor maps an engine to its SQL dialect.
func DialectFor(d Driver) Dialect {
	switch d {
	case DriverMySQL:
		return DialectMySQL
	case DriverMSSQL:
		return DialectMSSQL
	case DriverOracle:
		return DialectOracle
	default:
		return DialectPostgres
	}
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type orderClause struct {
	column string
	dir    SortDirection
}

// SelectBuilder constructs a paged SELECT over one table. Identifiers are
// quoted for the dialect; LIMIT and OFFSET are always bound as arguments.
//
// Usage (SQL Server):
//
//	sql, args, err := Select("dbo", "orders", DialectMSSQL).
//	    OrderBy("id", Asc).
//	    Limit(50).
//	    Offset(100).
//	    Build()
type SelectBuilder struct {
	schema  string
	table   string
	dialect Dialect
	columns []string
	orderBy []orderClause
	limit   *int
	offset  *int
}

// Select starts a new SelectBuilder. schema may be empty.
func Select(schema, table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{schema: schema, table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip (for pagination).
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
func (b *SelectBuilder) Build() (string, []any, error) {
	if err := b.validate(); err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.quote(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.from())

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", b.quote(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	var args []any
	switch b.dialect {
	case DialectMSSQL, DialectOracle:
		if b.limit == nil && b.offset == nil {
			break
		}
		// OFFSET/FETCH requires ORDER BY on SQL Server.
		if b.dialect == DialectMSSQL && len(b.orderBy) == 0 {
			sb.WriteString(" ORDER BY (SELECT NULL)")
		}
		offset := 0
		if b.offset != nil {
			offset = *b.offset
		}
		args = append(args, offset)
		sb.WriteString(fmt.Sprintf(" OFFSET %s ROWS", b.placeholder(len(args))))
		if b.limit != nil {
			args = append(args, *b.limit)
			sb.WriteString(fmt.Sprintf(" FETCH NEXT %s ROWS ONLY", b.placeholder(len(args))))
		}
	default:
		if b.limit != nil {
			args = append(args, *b.limit)
			sb.WriteString(fmt.Sprintf(" LIMIT %s", b.placeholder(len(args))))
		}
		if b.offset != nil {
			args = append(args, *b.offset)
			sb.WriteString(fmt.Sprintf(" OFFSET %s", b.placeholder(len(args))))
		}
	}

	return sb.String(), args, nil
}

// BuildCount produces a COUNT(*) over the same table, ignoring paging.
func (b *SelectBuilder) BuildCount() (string, error) {
	if err := b.validate(); err != nil {
		return "", err
	}
	return "SELECT COUNT(*) FROM " + b.from(), nil
}

func (b *SelectBuilder) validate() error {
	if strings.TrimSpace(b.table) == "" {
		return errs.New(errs.ErrKindInvalidInput, "table name is required")
	}
	if b.limit != nil && *b.limit < 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "limit must be >= 0, got %d", *b.limit)
	}
	if b.offset != nil && *b.offset < 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "offset must be >= 0, got %d", *b.offset)
	}
	return nil
}

func (b *SelectBuilder) from() string {
	if b.schema == "" {
		return b.quote(b.table)
	}
	return b.quote(b.schema) + "." + b.quote(b.table)
}

// placeholder returns the bind parameter for position idx (1-based).
func (b *SelectBuilder) placeholder(idx int) string {
	switch b.dialect {
	case DialectMySQL:
		return "?"
	case DialectMSSQL:
		return fmt.Sprintf("@p%d", idx)
	case DialectOracle:
		return fmt.Sprintf(":%d", idx)
	default:
		return fmt.Sprintf("$%d", idx)
	}
}

func (b *SelectBuilder) quote(name string) string {
	return QuoteIdent(b.dialect, name)
}

// QuoteIdent quotes an identifier for the dialect, escaping the quote
// character by doubling it.
func QuoteIdent(d Dialect, name string) string {
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case DialectMSSQL:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}
