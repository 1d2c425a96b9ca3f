package connector

import (
	"github.com/oneconcern/depot/pkg/errors"
)

var (
	// ErrClosed is returned by batch calls on a closed connector
	ErrClosed = errors.New("repository connector closed")

	// ErrNoRepositoryConnector indicates that no connector supports a repository
	ErrNoRepositoryConnector = errors.New("no repository connector available")

	// ErrUnsupportedProtocol indicates that no store is registered for a repository URL
	ErrUnsupportedProtocol = errors.New("unsupported repository protocol")

	// ErrInvalidSession indicates an inconsistent session
	ErrInvalidSession = errors.New("invalid connector session")
)

// NoRepositoryConnectorError reports a repository which could not be bound to a connector
type NoRepositoryConnectorError struct {
	Repository RemoteRepository
	Cause      error
}

func (e *NoRepositoryConnectorError) Error() string {
	msg := ErrNoRepositoryConnector.Error() + " for repository " + e.Repository.String()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is matches ErrNoRepositoryConnector
func (e *NoRepositoryConnectorError) Is(target error) bool {
	return target == ErrNoRepositoryConnector
}

// Unwrap yields the cause
func (e *NoRepositoryConnectorError) Unwrap() error {
	return e.Cause
}
