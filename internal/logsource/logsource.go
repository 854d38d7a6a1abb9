// Package logsource provides the flight-log sources the pipeline reads
// from: an S3-compatible object store and a local directory tree. Both
// list .ulg objects under a prefix, optionally filtered by vehicle, and
// open them as byte streams.
package logsource

import (
	"context"
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ErrNotFound reports a log identifier that does not exist in the source.
var ErrNotFound = errors.New("log not found")

// ErrAccessDenied reports a log the configured credentials cannot read.
var ErrAccessDenied = errors.New("access denied")

// logSuffix is the flight-log object extension, matched case-insensitively.
const logSuffix = ".ulg"

func isLogKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), logSuffix)
}

// IsTransient reports whether a fetch error is worth retrying: network
// failures, timeouts, and server-side throttling are; missing objects,
// denied access, and cancellation are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAccessDenied) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// classifyS3 maps an S3 error response onto the source taxonomy. Unmapped
// errors pass through and are treated as transient.
func classifyS3(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return errors.Join(ErrNotFound, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errors.Join(ErrAccessDenied, err)
	}
	return err
}
