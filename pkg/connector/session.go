package connector

import (
	"os"

	"github.com/docker/go-units"
	"github.com/oneconcern/depot/pkg/checksum"
	"github.com/oneconcern/depot/pkg/transfer"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// DefaultConcurrency is the default number of workers of a connector
	DefaultConcurrency = 5

	// DefaultBufferSize is the default size of the copy buffers
	DefaultBufferSize = 32 * units.KiB
)

// Session carries the settings shared by the connectors of an application.
//
// Zero values take defaults.
type Session struct {
	Logger   *zap.Logger
	Listener transfer.Listener
	// LocalFs holds the local files of transfers and the staging area
	LocalFs afero.Fs
	// Concurrency is the number of workers of each connector
	Concurrency int
	// ChecksumPolicy applies to downloads which don't set a policy or set ChecksumWarn
	ChecksumPolicy transfer.ChecksumPolicy
	// ChecksumAlgorithms are published on upload, and tried in order on download
	ChecksumAlgorithms []string
	// StagingDir is where metadata is merged before upload
	StagingDir string
	BufferSize int
	Tracer     opentracing.Tracer
}

// DefaultSession returns a session with all defaults set
func DefaultSession() *Session {
	s := &Session{}
	s.setDefaults()
	return s
}

func (s *Session) setDefaults() {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Listener == nil {
		s.Listener = transfer.NopListener{}
	}
	if s.LocalFs == nil {
		s.LocalFs = afero.NewOsFs()
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	if len(s.ChecksumAlgorithms) == 0 {
		for _, alg := range checksum.Defaults() {
			s.ChecksumAlgorithms = append(s.ChecksumAlgorithms, alg.Extension)
		}
	}
	if s.StagingDir == "" {
		s.StagingDir = os.TempDir()
	}
	if s.BufferSize <= 0 {
		s.BufferSize = DefaultBufferSize
	}
	if s.Tracer == nil {
		s.Tracer = opentracing.NoopTracer{}
	}
}

// resolve returns a copy of the session with defaults applied, and its checksum algorithms
func (s *Session) resolve() (Session, []checksum.Algorithm, error) {
	var resolved Session
	if s != nil {
		resolved = *s
		resolved.ChecksumAlgorithms = append([]string(nil), s.ChecksumAlgorithms...)
	}
	resolved.setDefaults()

	algs, err := checksum.Parse(resolved.ChecksumAlgorithms)
	if err != nil {
		return Session{}, nil, ErrInvalidSession.Wrap(err)
	}
	return resolved, algs, nil
}

// policy for a download: transfers asking for the default defer to the session
func (s *Session) policy(t *transfer.Transfer) transfer.ChecksumPolicy {
	if p := t.ChecksumPolicy(); p != transfer.ChecksumWarn {
		return p
	}
	return s.ChecksumPolicy
}
