// Package web implements a storage.Store over a plain HTTP repository:
// GET downloads, HEAD checks existence, PUT uploads, DELETE removes.
//
// Requests which fail on rate limiting or server errors are retried with an exponential backoff,
// and every host is guarded by a circuit breaker.
package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/oneconcern/depot/pkg/errors"
	"github.com/oneconcern/depot/pkg/storage"
	"github.com/oneconcern/depot/pkg/storage/status"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
	"go.uber.org/zap"
)

const (
	defaultUserAgent     = "depot/1.0"
	defaultMaxRetries    = 3
	defaultBaseDelay     = 500 * time.Millisecond
	defaultTripThreshold = 5
	dnsRefreshInterval   = 5 * time.Minute
)

var (
	// errRetryable marks responses worth retrying: 429 and 5xx
	errRetryable = errors.New("retryable upstream response")
)

// Store talks to a repository served over HTTP(S).
type Store struct {
	base          *url.URL
	client        *http.Client
	userAgent     string
	maxRetries    int
	baseDelay     time.Duration
	tripThreshold int64
	authFn        func(url string) (headerName, headerValue string)
	l             *zap.Logger

	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex

	resolver  *dnscache.Resolver
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a store for the repository rooted at baseURL
func New(baseURL string, opts ...Option) (*Store, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, status.ErrInvalidResource.Wrap(err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, status.ErrInvalidResource.Wrapf("unexpected scheme %q in %q", base.Scheme, baseURL)
	}
	if base.Host == "" {
		return nil, status.ErrInvalidResource.Wrapf("no host in %q", baseURL)
	}

	s := &Store{
		base:          base,
		userAgent:     defaultUserAgent,
		maxRetries:    defaultMaxRetries,
		baseDelay:     defaultBaseDelay,
		tripThreshold: defaultTripThreshold,
		l:             zap.NewNop(),
		breakers:      make(map[string]*circuit.Breaker),
		stop:          make(chan struct{}),
	}

	if user := base.User; user != nil {
		password, _ := user.Password()
		username := user.Username()
		s.authFn = func(string) (string, string) {
			req := http.Request{Header: http.Header{}}
			req.SetBasicAuth(username, password)
			return "Authorization", req.Header.Get("Authorization")
		}
		base.User = nil
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		s.client = s.cachingClient()
	}
	return s, nil
}

// FromURL is an alias for New, for symmetry with the other stores
func FromURL(u string, opts ...Option) (storage.Store, error) {
	return New(u, opts...)
}

func (s *Store) cachingClient() *http.Client {
	s.resolver = &dnscache.Resolver{}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(dnsRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.resolver.Refresh(true)
			case <-s.stop:
				return
			}
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}
				ips, err := s.resolver.LookupHost(ctx, host)
				if err != nil {
					return nil, err
				}
				for _, ip := range ips {
					conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						return conn, nil
					}
				}
				return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
			},
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func (s *Store) String() string {
	return s.base.String()
}

func (s *Store) url(key string) string {
	return s.base.JoinPath(strings.TrimLeft(key, "/")).String()
}

// breaker returns or creates the circuit breaker for the host of the repository
func (s *Store) breaker() *circuit.Breaker {
	host := s.base.Host
	s.mu.RLock()
	breaker, exists := s.breakers[host]
	s.mu.RUnlock()

	if exists {
		return breaker
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if breaker, exists := s.breakers[host]; exists {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(s.tripThreshold),
	})
	s.breakers[host] = breaker
	return breaker
}

func (s *Store) retryPolicy(ctx context.Context) backoff.BackOff {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.baseDelay
	expBackoff.RandomizationFactor = 0.1
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(s.maxRetries)), ctx)
}

// do sends one request through the circuit breaker, retrying on 429 and 5xx responses.
//
// rewind is called before every retry. A nil rewind disables retries.
func (s *Store) do(ctx context.Context, method, key string, body io.Reader, rewind func() error) (*http.Response, error) {
	breaker := s.breaker()
	target := s.url(key)

	var (
		resp    *http.Response
		lastErr error
	)
	attempt := 0
	operation := func() error {
		if attempt > 0 {
			if rewind == nil {
				return backoff.Permanent(lastErr)
			}
			if err := rewind(); err != nil {
				return backoff.Permanent(err)
			}
			s.l.Debug("retrying request", zap.String("method", method), zap.String("url", target), zap.Int("attempt", attempt))
		}
		attempt++

		if !breaker.Ready() {
			return backoff.Permanent(status.ErrUnavailable.Wrapf("circuit breaker open for %s", s.base.Host))
		}

		var err error
		resp, err = s.send(ctx, method, target, body)
		if err != nil {
			breaker.Fail()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return backoff.Permanent(err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			breaker.Fail()
			_ = resp.Body.Close()
			lastErr = errRetryable.Wrapf("%s %s: status %d", method, target, resp.StatusCode)
			return lastErr
		}
		breaker.Success()
		return nil
	}

	err := backoff.Retry(operation, s.retryPolicy(ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, errRetryable) {
			return nil, status.FromHTTPStatus(resp.StatusCode).Wrap(err)
		}
		return nil, err
	}
	return resp, nil
}

func (s *Store) send(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "*/*")
	if s.authFn != nil {
		if name, value := s.authFn(target); name != "" && value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	_ = resp.Body.Close()
	msg := fmt.Sprintf("%s %s: status %d", resp.Request.Method, resp.Request.URL, resp.StatusCode)
	if len(body) > 0 {
		msg += ": " + strings.TrimSpace(string(body))
	}

	return status.FromHTTPStatus(resp.StatusCode).Wrapf("%s", msg)
}

// Has checks if an object exists with a HEAD request
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	resp, err := s.do(ctx, http.MethodHead, key, nil, noRewind)
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusOK {
		_ = resp.Body.Close()
		return true, nil
	}
	err = statusError(resp)
	if status.IsNotExists(err) {
		return false, nil
	}
	return false, err
}

// Get downloads an object. The caller must close the returned body.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, key, nil, noRewind)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// Put uploads an object. Retries are only attempted when the source can be rewound.
func (s *Store) Put(ctx context.Context, key string, source io.Reader) error {
	var rewind func() error
	if seeker, ok := source.(io.Seeker); ok {
		start, err := seeker.Seek(0, io.SeekCurrent)
		if err == nil {
			rewind = func() error {
				_, err := seeker.Seek(start, io.SeekStart)
				return err
			}
		}
	}

	resp, err := s.do(ctx, http.MethodPut, key, io.NopCloser(source), rewind)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusAccepted:
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil
	default:
		return statusError(resp)
	}
}

// Delete removes an object. Removing a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	resp, err := s.do(ctx, http.MethodDelete, key, nil, noRewind)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		_ = resp.Body.Close()
		return nil
	default:
		err = statusError(resp)
		if status.IsNotExists(err) {
			return nil
		}
		return err
	}
}

// BreakerState returns the state of the circuit breakers, by host
func (s *Store) BreakerState() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make(map[string]string, len(s.breakers))
	for host, breaker := range s.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// Close stops the DNS cache refresher and releases idle connections
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.client.CloseIdleConnections()
	})
	return nil
}

// requests without a body may always be replayed
func noRewind() error { return nil }

var _ storage.Store = &Store{}
