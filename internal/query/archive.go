package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/filestore"
)

// ArchiveResult locates an export stored in the object store.
type ArchiveResult struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Rows   int    `json:"rows"`
	Size   int64  `json:"size"`
	URL    string `json:"url"`
}

// Archiver streams exports straight into object storage.
type Archiver struct {
	Store    filestore.Store
	Bucket   string
	URLTTL   time.Duration
	// Executor runs the export; nil means a default Executor.
	Executor *Executor

	// Now is overridable in tests.
	Now func() time.Time
}

// Archive exports sql from db into exports/<connectionID>/<timestamp>.<ext>
// and returns a presigned download link. Rows are piped into the upload as
// they are read, so the export is never held in memory.
func (a *Archiver) Archive(ctx context.Context, db database.DB, connectionID, sql string, format Format) (*ArchiveResult, error) {
	if a == nil || a.Store == nil {
		return nil, errs.New(errs.ErrKindUnsupported, "object storage is not configured")
	}
	if err := a.executor().CheckStatement(sql); err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatTSV
	}

	if err := a.Store.EnsureBucket(ctx, a.Bucket); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("exports/%s/%s.%s", connectionID, a.now().UTC().Format("20060102T150405Z"), format.Extension())

	pr, pw := io.Pipe()
	type exportDone struct {
		rows int
		err  error
	}
	done := make(chan exportDone, 1)

	go func() {
		n, err := a.executor().Export(ctx, db, sql, pw, format)
		_ = pw.CloseWithError(err)
		done <- exportDone{rows: n, err: err}
	}()

	info, putErr := a.Store.PutObject(ctx, a.Bucket, key, pr, -1, format.ContentType())
	// Unblock the exporter if the upload gave up early.
	_ = pr.CloseWithError(putErr)
	exp := <-done

	// When the upload broke the pipe, the exporter only saw the echo.
	if putErr != nil && (exp.err == nil || errors.Is(exp.err, putErr)) {
		return nil, putErr
	}
	if exp.err != nil {
		return nil, exp.err
	}

	url, err := a.Store.PresignGetURL(ctx, a.Bucket, key, a.URLTTL)
	if err != nil {
		return nil, err
	}

	return &ArchiveResult{
		Bucket: a.Bucket,
		Key:    key,
		Rows:   exp.rows,
		Size:   info.Size,
		URL:    url,
	}, nil
}

func (a *Archiver) executor() *Executor {
	if a.Executor == nil {
		return &Executor{}
	}
	return a.Executor
}

func (a *Archiver) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
