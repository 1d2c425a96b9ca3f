package web

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Option configures a web store.
type Option func(*Store)

// WithHTTPClient sets a custom HTTP client. The DNS cache is not used in that case.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		if c != nil {
			s.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Store) {
		s.userAgent = ua
	}
}

// WithMaxRetries sets the maximum retry attempts on rate limiting and server errors.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithBaseDelay sets the initial delay of the exponential backoff between retries.
func WithBaseDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.baseDelay = d
		}
	}
}

// WithAuthFunc sets a function that returns auth headers for a given URL.
//
// Return empty strings to skip authentication for that URL.
func WithAuthFunc(fn func(url string) (headerName, headerValue string)) Option {
	return func(s *Store) {
		s.authFn = fn
	}
}

// WithTripThreshold sets the number of consecutive failures which open the circuit breaker of a host.
func WithTripThreshold(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.tripThreshold = n
		}
	}
}

// WithLogger specifies a logger for this store
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.l = logger
		}
	}
}
