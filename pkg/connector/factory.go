// Copyright © 2018 One Concern

package connector

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/oneconcern/depot/pkg/model"
	"github.com/oneconcern/depot/pkg/storage"
	"github.com/oneconcern/depot/pkg/storage/gcs"
	"github.com/oneconcern/depot/pkg/storage/localfs"
	"github.com/oneconcern/depot/pkg/storage/sthree"
	"github.com/oneconcern/depot/pkg/storage/web"
)

// StoreProvider builds the store backing a remote repository
type StoreProvider func(context.Context, *Session, RemoteRepository) (storage.Store, error)

var (
	providersMx sync.RWMutex
	providers   = make(map[string]StoreProvider)
)

func init() {
	RegisterStore("file", func(_ context.Context, s *Session, repo RemoteRepository) (storage.Store, error) {
		return localfs.OnFs(s.LocalFs, repo.URL)
	})
	RegisterStore("s3", func(_ context.Context, s *Session, repo RemoteRepository) (storage.Store, error) {
		return sthree.FromURL(repo.URL, sthree.Logger(s.Logger))
	})
	RegisterStore("gs", func(ctx context.Context, s *Session, repo RemoteRepository) (storage.Store, error) {
		return gcs.FromURL(ctx, repo.URL, gcs.Logger(s.Logger))
	})
	webProvider := func(_ context.Context, s *Session, repo RemoteRepository) (storage.Store, error) {
		return web.FromURL(repo.URL, web.WithLogger(s.Logger))
	}
	RegisterStore("http", webProvider)
	RegisterStore("https", webProvider)
}

// RegisterStore makes a store provider available for some URL protocol.
//
// Registering a nil provider removes the protocol.
func RegisterStore(protocol string, provider StoreProvider) {
	protocol = strings.ToLower(protocol)
	providersMx.Lock()
	defer providersMx.Unlock()
	if provider == nil {
		delete(providers, protocol)
		return
	}
	providers[protocol] = provider
}

// Protocols lists the registered protocols
func Protocols() []string {
	providersMx.RLock()
	defer providersMx.RUnlock()
	protocols := make([]string, 0, len(providers))
	for p := range providers {
		protocols = append(protocols, p)
	}
	sort.Strings(protocols)
	return protocols
}

func provider(protocol string) (StoreProvider, bool) {
	providersMx.RLock()
	defer providersMx.RUnlock()
	p, ok := providers[protocol]
	return p, ok
}

// Factory creates repository connectors
type Factory interface {
	NewInstance(context.Context, *Session, RemoteRepository) (RepositoryConnector, error)
}

// FactoryFunc adapts a function to a Factory
type FactoryFunc func(context.Context, *Session, RemoteRepository) (RepositoryConnector, error)

// NewInstance of a connector
func (f FactoryFunc) NewInstance(ctx context.Context, session *Session, repo RemoteRepository) (RepositoryConnector, error) {
	return f(ctx, session, repo)
}

// DefaultFactory builds connectors on the store registered for the protocol of the repository
type DefaultFactory struct{}

var _ Factory = DefaultFactory{}

// NewInstance of a connector
func (DefaultFactory) NewInstance(ctx context.Context, session *Session, repo RemoteRepository) (RepositoryConnector, error) {
	resolved, _, err := session.resolve()
	if err != nil {
		return nil, err
	}

	p, ok := provider(repo.Protocol())
	if !ok {
		return nil, &NoRepositoryConnectorError{Repository: repo, Cause: ErrUnsupportedProtocol.Wrapf("%q", repo.Protocol())}
	}

	layout, err := model.LayoutByName(repo.Layout)
	if err != nil {
		return nil, &NoRepositoryConnectorError{Repository: repo, Cause: err}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	store, err := p(ctx, &resolved, repo)
	if err != nil {
		return nil, &NoRepositoryConnectorError{Repository: repo, Cause: err}
	}

	c, err := NewConnector(store, layout, &resolved, repo)
	if err != nil {
		if closer, ok := store.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	return c, nil
}
