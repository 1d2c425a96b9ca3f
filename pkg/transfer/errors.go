package transfer

import (
	"context"
	"fmt"

	"github.com/oneconcern/depot/pkg/errors"
)

var (
	// ErrTransfer is a generic transfer failure
	ErrTransfer = errors.New("transfer failed")

	// ErrCancelled indicates that the transfer was interrupted, e.g. by closing its connector
	ErrCancelled = errors.New("transfer cancelled")

	// ErrArtifactNotFound indicates that an artifact does not exist in the remote repository
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrMetadataNotFound indicates that a metadata file does not exist in the remote repository
	ErrMetadataNotFound = errors.New("metadata not found")

	// ErrChecksumMismatch indicates that a downloaded payload doesn't match its published checksum
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrNoChecksum indicates that no checksum is published for a downloaded payload
	ErrNoChecksum = errors.New("no checksum available")

	// ErrMerge indicates that metadata could not be merged with its remote copy
	ErrMerge = errors.New("metadata merge failed")

	// ErrNoMergedContent indicates that metadata reports being merged but its merged content
	// was staged by another connector, or has been released by Close
	ErrNoMergedContent = errors.New("no merged content for metadata")
)

// ChecksumError reports a corrupted download
type ChecksumError struct {
	Algorithm string
	Expected  string
	Actual    string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s: %s checksum expected %s but was %s", ErrChecksumMismatch, e.Algorithm, e.Expected, e.Actual)
}

// Unwrap yields ErrChecksumMismatch
func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}

// NotFoundError reports a resource missing from a remote repository
type NotFoundError struct {
	Kind       Kind
	Resource   string
	Repository string
	Cause      error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("could not find %s %s in %s", e.Kind, e.Resource, e.Repository)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is matches the not found sentinel of the kind of resource
func (e *NotFoundError) Is(target error) bool {
	if e.Kind == MetadataKind {
		return target == ErrMetadataNotFound
	}
	return target == ErrArtifactNotFound
}

// Unwrap yields the storage error
func (e *NotFoundError) Unwrap() error {
	return e.Cause
}

// IsCorruption tells if a transfer failed its integrity verification
func IsCorruption(err error) bool {
	return errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrNoChecksum)
}

// IsCancellation tells if a transfer was interrupted rather than failed
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsNotFound tells if a transfer failed because the remote resource is missing
func IsNotFound(err error) bool {
	return errors.Is(err, ErrArtifactNotFound) || errors.Is(err, ErrMetadataNotFound)
}
