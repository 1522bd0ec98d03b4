package query

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
)

// Format is an export file format.
type Format string

const (
	FormatTSV Format = "tsv"
	FormatCSV Format = "csv"
)

// ParseFormat maps a request value to a Format; "" means tsv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTSV:
		return FormatTSV, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", errs.Newf(errs.ErrKindInvalidInput, "unsupported export format %q (want tsv or csv)", s)
	}
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "text/tab-separated-values"
}

// Extension is the file extension of f, without the dot.
func (f Format) Extension() string {
	if f == FormatCSV {
		return "csv"
	}
	return "tsv"
}

func (f Format) separator() rune {
	if f == FormatCSV {
		return ','
	}
	return '\t'
}

// Export streams every row of sql to w: a header line of column names, then
// one line per row. NULL is written as an empty field. Nothing is written
// to w if the statement fails to start. It returns the number of data rows.
func (e *Executor) Export(ctx context.Context, db database.DB, sql string, w io.Writer, format Format) (int, error) {
	if err := e.CheckStatement(sql); err != nil {
		return 0, err
	}
	if format == "" {
		format = FormatTSV
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	rows, err := e.query(ctx, db, sql)
	if err != nil {
		return 0, e.mapCtxErr(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	cw.Comma = format.separator()

	if err := cw.Write(cols); err != nil {
		return 0, errs.Wrap(errs.ErrKindUnknown, "failed to write export header", err)
	}

	n := 0
	record := make([]string, len(cols))
	for rows.Next() {
		if len(cols) == 0 {
			continue
		}
		vals, err := database.ScanValues(rows, len(cols))
		if err != nil {
			return n, err
		}
		for i, v := range vals {
			record[i] = database.FormatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return n, errs.Wrap(errs.ErrKindUnknown, "failed to write export row", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, e.mapCtxErr(ctx, err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, errs.Wrap(errs.ErrKindUnknown, "failed to flush export", err)
	}

	e.log().With().Str("driver", string(db.Driver())).Int("rows", n).Str("format", string(format)).
		Logger().Debug("query exported")
	return n, nil
}
