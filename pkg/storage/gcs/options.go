package gcs

import (
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Option is a functor to pass optional parameters to the gcs store
type Option func(*gcs)

// Logger specifies a logger for this store
func Logger(logger *zap.Logger) Option {
	return func(g *gcs) {
		if logger != nil {
			g.l = logger
		}
	}
}

// Prefix sets the object prefix of the repository within its bucket
func Prefix(prefix string) Option {
	return func(g *gcs) {
		g.prefix = strings.Trim(prefix, "/")
	}
}

// ClientOptions are passed to the google storage clients, e.g. credentials or an endpoint
func ClientOptions(opts ...option.ClientOption) Option {
	return func(g *gcs) {
		g.clientOpts = append(g.clientOpts, opts...)
	}
}
