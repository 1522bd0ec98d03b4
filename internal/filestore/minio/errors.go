package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/dbconnector/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// op is the object store call an error came from. Some S3 codes mean a
// broken export target on upload but a plain lookup miss elsewhere.
type op int

const (
	opPing op = iota
	opBucket
	opUpload
	opStat
	opPresign
)

// codeKinds classifies S3 error codes that mean the same on every call.
var codeKinds = map[string]errs.ErrKind{
	"NoSuchKey":             errs.ErrKindNotFound,
	"NoSuchUpload":          errs.ErrKindNotFound,
	"AccessDenied":          errs.ErrKindPermissionDenied,
	"InvalidAccessKeyId":    errs.ErrKindPermissionDenied,
	"SignatureDoesNotMatch": errs.ErrKindPermissionDenied,
	"InvalidBucketName":     errs.ErrKindInvalidInput,
	"InvalidObjectName":     errs.ErrKindInvalidInput,
	"KeyTooLongError":       errs.ErrKindInvalidInput,
	"EntityTooLarge":        errs.ErrKindInvalidInput,
	"RequestTimeout":        errs.ErrKindTimeout,
	"SlowDown":              errs.ErrKindTimeout,
}

// mapError translates a MinIO SDK error from call o into a *errs.Error.
func mapError(err error, o op, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp miniogo.ErrorResponse
	if !errors.As(err, &resp) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	switch {
	case resp.Code == "NoSuchBucket" && o == opUpload:
		// EnsureBucket ran first, so the bucket vanished or the
		// credentials cannot see it.
		return errs.Wrapf(errs.ErrKindUnsupported, err, "%s: export bucket %q is unavailable, check objectstore_bucket", msg, resp.BucketName)
	case resp.Code == "NoSuchBucket":
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case resp.Code == "EntityTooLarge" && o == opUpload:
		return errs.Wrap(errs.ErrKindInvalidInput, msg+": export is larger than the object store accepts", err)
	case (resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden) && o == opPing:
		return errs.Wrap(errs.ErrKindPermissionDenied, msg+": check objectstore_access_key and objectstore_secret_key", err)
	}

	if kind, ok := codeKinds[resp.Code]; ok {
		return errs.Wrap(kind, msg, err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case http.StatusBadRequest:
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
