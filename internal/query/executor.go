// Package query runs ad-hoc SQL against a registered connection: paged
// execution, table preview and full exports.
package query

import (
	"context"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/logger"
)

const (
	DefaultPage        = 1
	DefaultPageSize    = 50
	DefaultMaxPageSize = 1000
)

// readOnlyPrefixes are the statement keywords allowed in read-only mode.
var readOnlyPrefixes = []string{"SELECT", "WITH", "SHOW", "EXPLAIN", "DESCRIBE", "VALUES"}

// writeKeywords mark a SELECT, WITH or VALUES statement that modifies data
// through a data-modifying CTE, SELECT INTO or a row lock.
var writeKeywords = []string{"INSERT", "UPDATE", "DELETE", "MERGE", "INTO"}

// Result is one page of a statement's output. len(Rows[i]) == len(Columns).
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	TotalRows int      `json:"total_rows"`
	Page      int      `json:"page"`
	PageSize  int      `json:"page_size"`
	HasMore   bool     `json:"has_more"`
}

// Executor runs statements with a timeout and optional read-only guard.
type Executor struct {
	// QueryTimeout bounds a single statement; 0 means no limit.
	QueryTimeout time.Duration

	// ReadOnly rejects statements that may modify data.
	ReadOnly bool

	// MaxPageSize caps page_size; 0 means DefaultMaxPageSize.
	MaxPageSize int

	Log *logger.Logger
}

// Execute runs sql and returns the requested page. Every row is read so the
// total is exact, but only the page's rows are kept.
func (e *Executor) Execute(ctx context.Context, db database.DB, sql string, page, pageSize int) (*Result, error) {
	if err := e.CheckStatement(sql); err != nil {
		return nil, err
	}
	if err := e.checkPage(page, pageSize); err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := e.query(ctx, db, sql)
	if err != nil {
		return nil, e.mapCtxErr(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * pageSize
	res := &Result{
		Columns:  nonNil(cols),
		Rows:     [][]any{},
		Page:     page,
		PageSize: pageSize,
	}

	for rows.Next() {
		idx := res.TotalRows
		res.TotalRows++
		if idx < offset || idx >= offset+pageSize || len(cols) == 0 {
			continue
		}
		vals, err := database.ScanValues(rows, len(cols))
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = database.NormalizeValue(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, e.mapCtxErr(ctx, err)
	}

	res.HasMore = offset+pageSize < res.TotalRows

	e.log().With().
		Str("driver", string(db.Driver())).
		Int("total_rows", res.TotalRows).
		Int("page", page).
		Any("duration", time.Since(start)).
		Logger().Debug("query executed")

	return res, nil
}

// Preview pages through schema.table using the driver's own LIMIT/OFFSET
// syntax. orderBy may be prefixed with '-' for descending order.
func (e *Executor) Preview(ctx context.Context, db database.DB, schema, table string, page, pageSize int, orderBy string) (*Result, error) {
	if err := e.checkPage(page, pageSize); err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	b := database.Select(schema, table, database.DialectFor(db.Driver()))
	if col := strings.TrimPrefix(orderBy, "-"); col != "" {
		dir := database.Asc
		if strings.HasPrefix(orderBy, "-") {
			dir = database.Desc
		}
		b.OrderBy(col, dir)
	}
	b.Limit(pageSize).Offset((page - 1) * pageSize)

	countSQL, err := b.BuildCount()
	if err != nil {
		return nil, err
	}
	total, err := e.count(ctx, db, countSQL)
	if err != nil {
		return nil, err
	}

	selectSQL, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, e.mapCtxErr(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Columns:   nonNil(cols),
		Rows:      [][]any{},
		TotalRows: total,
		Page:      page,
		PageSize:  pageSize,
		HasMore:   (page-1)*pageSize+pageSize < total,
	}
	for rows.Next() {
		vals, err := database.ScanValues(rows, len(cols))
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = database.NormalizeValue(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, e.mapCtxErr(ctx, err)
	}
	return res, nil
}

func (e *Executor) count(ctx context.Context, db database.DB, sql string) (int, error) {
	rows, err := db.Query(ctx, sql)
	if err != nil {
		return 0, e.mapCtxErr(ctx, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, e.mapCtxErr(ctx, err)
		}
		return 0, errs.New(errs.ErrKindQueryFailed, "count returned no rows")
	}
	vals, err := database.ScanValues(rows, 1)
	if err != nil {
		return 0, err
	}
	return toInt(vals[0])
}

// CheckStatement rejects blank statements, and writes in read-only mode.
// Callers may use it to fail fast before acquiring a connection.
func (e *Executor) CheckStatement(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return errs.New(errs.ErrKindInvalidInput, "query must not be empty")
	}
	if e.ReadOnly && !isReadOnly(sql) {
		return errs.New(errs.ErrKindInvalidInput, "read-only mode: only single SELECT, WITH, SHOW, EXPLAIN, DESCRIBE and VALUES statements that do not modify data are allowed")
	}
	return nil
}

func (e *Executor) checkPage(page, pageSize int) error {
	maxSize := e.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}
	if page < 1 {
		return errs.Newf(errs.ErrKindInvalidInput, "page must be >= 1, got %d", page)
	}
	if pageSize < 1 || pageSize > maxSize {
		return errs.Newf(errs.ErrKindInvalidInput, "page_size must be between 1 and %d, got %d", maxSize, pageSize)
	}
	// offset+pageSize must fit in an int.
	if page > (math.MaxInt-pageSize)/pageSize+1 {
		return errs.Newf(errs.ErrKindInvalidInput, "page %d is out of range for page_size %d", page, pageSize)
	}
	return nil
}

// query runs a user statement, inside a read-only transaction when the
// executor is read-only and the driver offers one.
func (e *Executor) query(ctx context.Context, db database.DB, sql string) (database.Rows, error) {
	if ro, ok := db.(database.ReadOnlyQuerier); ok && e.ReadOnly {
		return ro.QueryReadOnly(ctx, sql)
	}
	return db.Query(ctx, sql)
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.QueryTimeout > 0 {
		return context.WithTimeout(ctx, e.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// mapCtxErr reports a statement cut short by the executor's deadline as a
// timeout, whatever the driver made of it.
func (e *Executor) mapCtxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errs.IsTimeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, "query timed out", err)
	}
	return err
}

func (e *Executor) log() *logger.Logger {
	if e.Log == nil {
		return logger.Nop()
	}
	return e.Log
}

// isReadOnly reports whether sql is a single statement whose first keyword
// is one of readOnlyPrefixes. EXPLAIN ANALYZE runs its statement, so it
// counts as a write, and so does any writeKeywords word in a SELECT, WITH
// or VALUES statement.
func isReadOnly(sql string) bool {
	words, chained := scanWords(sql)
	if chained || len(words) == 0 || !slices.Contains(readOnlyPrefixes, words[0]) {
		return false
	}
	switch words[0] {
	case "SHOW", "DESCRIBE":
		return true
	case "EXPLAIN":
		return !slices.Contains(words, "ANALYZE") && !slices.Contains(words, "ANALYSE")
	}
	for _, w := range words[1:] {
		if slices.Contains(writeKeywords, w) {
			return false
		}
	}
	return true
}

// scanWords returns the upper-cased bare words of sql, skipping comments and
// quoted text. chained is true when anything but whitespace or comments
// follows a semicolon. An unterminated comment or quote ends the scan.
func scanWords(sql string) (words []string, chained bool) {
	afterSemi := false
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case strings.HasPrefix(sql[i:], "--"):
			nl := strings.IndexByte(sql[i:], '\n')
			if nl < 0 {
				return words, chained
			}
			i += nl + 1
		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return words, chained
			}
			i += end + 4
		case c == '\'' || c == '"' || c == '`' || c == '[':
			chained = chained || afterSemi
			closer := c
			if c == '[' {
				closer = ']'
			}
			end := strings.IndexByte(sql[i+1:], closer)
			if end < 0 {
				return words, chained
			}
			i += end + 2
		case c == ';':
			afterSemi = true
			i++
		case isWordByte(c):
			chained = chained || afterSemi
			j := i
			for j < len(sql) && isWordByte(sql[j]) {
				j++
			}
			words = append(words, strings.ToUpper(sql[i:j]))
			i = j
		default:
			if afterSemi && c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				chained = true
			}
			i++
		}
	}
	return words, chained
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c >= 0x80
}

func toInt(v any) (int, error) {
	switch n := database.NormalizeValue(v).(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		out, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, errs.Wrap(errs.ErrKindQueryFailed, "unexpected count value", err)
		}
		return out, nil
	default:
		return 0, errs.Newf(errs.ErrKindQueryFailed, "unexpected count type %T", v)
	}
}

func nonNil(cols []string) []string {
	if cols == nil {
		return []string{}
	}
	return cols
}
