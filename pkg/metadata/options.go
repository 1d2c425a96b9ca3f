package metadata

import (
	"time"

	"github.com/spf13/afero"
)

// Option configures mergeable metadata
type Option func(*options)

type options struct {
	fs    afero.Fs
	clock func() time.Time
}

// WithFs sets the file system holding the current and merged files. Defaults to the OS.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithClock sets the clock used to stamp the lastUpdated field
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func defaultOptions(opts []Option) options {
	o := options{
		fs:    afero.NewOsFs(),
		clock: time.Now,
	}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
