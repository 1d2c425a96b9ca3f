package sthree

import (
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/oneconcern/depot/pkg/errors"
	"github.com/oneconcern/depot/pkg/storage/status"
)

// S3 error codes refining the HTTP status of a response.
// See https://docs.aws.amazon.com/AmazonS3/latest/API/ErrorResponses.html#ErrorCodeList
var codeErrors = map[string]*errors.Error{
	"InvalidBucketName": status.ErrInvalidResource,
	"NoSuchBucket":      status.ErrNotFound,
	"NoSuchKey":         status.ErrNotExists,
	"SlowDown":          status.ErrUnavailable,
	"NotImplemented":    status.ErrNotSupported,
}

// toSentinelErrors maps the failures of S3 requests to storage status errors
func toSentinelErrors(err error) error {
	if err == nil {
		return nil
	}
	var failure awserr.RequestFailure
	if !errors.As(err, &failure) {
		return err
	}
	if sentinel, ok := codeErrors[failure.Code()]; ok {
		return sentinel.Wrap(err)
	}
	// HEAD responses carry no error code
	return status.FromHTTPStatus(failure.StatusCode()).Wrap(err)
}

func ignoreNotExists(err error) error {
	if status.IsNotExists(err) {
		return nil
	}
	return err
}
