package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/userstream/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// S3 error codes the driver classifies.
const (
	codeNoSuchBucket       = "NoSuchBucket"
	codeNoSuchKey          = "NoSuchKey"
	codeNoSuchUpload       = "NoSuchUpload"
	codeAccessDenied       = "AccessDenied"
	codeInvalidAccessKeyID = "InvalidAccessKeyId"
	codeSignatureMismatch  = "SignatureDoesNotMatch"
	codeInvalidBucketName  = "InvalidBucketName"
	codeInvalidObjectName  = "InvalidObjectName"
	codeKeyTooLong         = "KeyTooLongError"
	codeEntityTooLarge     = "EntityTooLarge"
	codeRequestTimeout     = "RequestTimeout"
	codeSlowDown           = "SlowDown"
	codeBucketOwnedByYou   = "BucketAlreadyOwnedByYou"
)

// mapError translates a MinIO SDK error into a *errs.Error.
// err must be non-nil.
func mapError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	resp := miniogo.ToErrorResponse(err)
	if resp.Code == "" && resp.StatusCode == 0 {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	// Codes are more specific than status, check them first.
	switch resp.Code {
	case codeNoSuchBucket, codeNoSuchKey, codeNoSuchUpload:
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case codeAccessDenied, codeInvalidAccessKeyID, codeSignatureMismatch:
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case codeInvalidBucketName, codeInvalidObjectName, codeKeyTooLong, codeEntityTooLarge:
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	case codeRequestTimeout, codeSlowDown:
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case http.StatusBadRequest:
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

func alreadyOwned(err error) bool {
	return miniogo.ToErrorResponse(err).Code == codeBucketOwnedByYou
}
