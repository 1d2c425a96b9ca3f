package gcs

import (
	"net/http"
	"strings"

	gcsStorage "cloud.google.com/go/storage"
	"github.com/oneconcern/depot/pkg/errors"
	"github.com/oneconcern/depot/pkg/storage/status"
	"google.golang.org/api/googleapi"
)

// toSentinelErrors maps the failures of google cloud storage calls to storage status errors
func toSentinelErrors(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gcsStorage.ErrObjectNotExist):
		return status.ErrNotExists.Wrap(err)
	case errors.Is(err, gcsStorage.ErrBucketNotExist):
		return status.ErrNotFound.Wrap(err)
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Body, "bucket is not valid"):
		return status.ErrInvalidResource.Wrap(err)
	case apiErr.Code == http.StatusNotFound:
		// object lookups report ErrObjectNotExist: a bare 404 is about the bucket
		return status.ErrNotFound.Wrap(err)
	default:
		return status.FromHTTPStatus(apiErr.Code).Wrap(err)
	}
}
