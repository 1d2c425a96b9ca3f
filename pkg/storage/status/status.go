// Copyright © 2018 One Concern

// Package status declares error constants returned by
// implementations of the Store interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/storage and one
// of its implementations.
package status

import (
	"net/http"

	"github.com/oneconcern/depot/pkg/errors"
)

var (
	// Sentinel errors returned by implementations of the interface defined by storage

	// ErrNotExists indicates that the fetched object does not exist on storage
	ErrNotExists = errors.New("object doesn't exist")

	// ErrNotFound indicates that the backend API call did not find the target resource (e.g. a bucket)
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates that you don't provided correct credentials to the API
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates that the backend API forbids access to the target resource
	ErrForbidden = errors.New("forbidden")

	// ErrNotSupported indicates that the backend API does not support this call
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidResource indicates that the storage resource has an invalid name
	ErrInvalidResource = errors.New("invalid storage resource name")

	// ErrStorageAPI indicates any other storage API error
	ErrStorageAPI = errors.New("storage API error")

	// ErrUnavailable indicates that the backend refused to serve the request for now,
	// e.g. when a circuit breaker is open
	ErrUnavailable = errors.New("storage temporarily unavailable")
)

// IsNotExists tells if an error reports a missing object
func IsNotExists(err error) bool {
	return errors.Is(err, ErrNotExists)
}

// IsTransient tells if a request failing with err may succeed later
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// FromHTTPStatus is the sentinel for an HTTP status code reported by a storage backend.
// Backends refine it with their own error codes, e.g. to tell a missing bucket from a missing object.
func FromHTTPStatus(code int) *errors.Error {
	switch code {
	case http.StatusNotFound, http.StatusGone:
		return ErrNotExists
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return ErrNotSupported
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return ErrStorageAPI
	}
}
