// Copyright © 2018 One Concern

package gcs

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	gcsStorage "cloud.google.com/go/storage"
	"github.com/oneconcern/depot/pkg/storage"
	"github.com/oneconcern/depot/pkg/storage/status"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type gcs struct {
	client         *gcsStorage.Client
	readOnlyClient *gcsStorage.Client
	bucket         string
	prefix         string
	clientOpts     []option.ClientOption
	l              *zap.Logger
}

// New builds a store over a google cloud storage bucket
func New(ctx context.Context, bucket string, opts ...Option) (storage.Store, error) {
	if bucket == "" {
		return nil, status.ErrInvalidResource.Wrapf("a gcs store requires a bucket")
	}
	googleStore := &gcs{
		bucket: bucket,
		l:      zap.NewNop(),
	}
	for _, apply := range opts {
		apply(googleStore)
	}

	var err error
	googleStore.readOnlyClient, err = gcsStorage.NewClient(ctx,
		append([]option.ClientOption{option.WithScopes(gcsStorage.ScopeReadOnly)}, googleStore.clientOpts...)...)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	googleStore.client, err = gcsStorage.NewClient(ctx,
		append([]option.ClientOption{option.WithScopes(gcsStorage.ScopeFullControl)}, googleStore.clientOpts...)...)
	if err != nil {
		_ = googleStore.readOnlyClient.Close()
		return nil, toSentinelErrors(err)
	}
	return googleStore, nil
}

// FromURL builds a store from a gs://bucket/prefix URL
func FromURL(ctx context.Context, u string, opts ...Option) (storage.Store, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, status.ErrInvalidResource.Wrap(err)
	}
	if parsed.Scheme != "gs" {
		return nil, status.ErrInvalidResource.Wrapf("unexpected scheme %q in %q", parsed.Scheme, u)
	}
	return New(ctx, parsed.Host, append([]Option{Prefix(parsed.Path)}, opts...)...)
}

func (g *gcs) objectName(key string) string {
	return path.Join(g.prefix, strings.TrimLeft(key, "/"))
}

func (g *gcs) String() string {
	if g.prefix == "" {
		return "gcs://" + g.bucket
	}
	return "gcs://" + g.bucket + "/" + g.prefix
}

func (g *gcs) Has(ctx context.Context, key string) (bool, error) {
	_, err := g.readOnlyClient.Bucket(g.bucket).Object(g.objectName(key)).Attrs(ctx)
	if err != nil {
		err = toSentinelErrors(err)
		if status.IsNotExists(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (g *gcs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectReader, err := g.readOnlyClient.Bucket(g.bucket).Object(g.objectName(key)).NewReader(ctx)
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return objectReader, nil
}

// Put overwrites unconditionally: metadata objects are replaced by their merged version
func (g *gcs) Put(ctx context.Context, key string, reader io.Reader) error {
	writer := g.client.Bucket(g.bucket).Object(g.objectName(key)).NewWriter(ctx)
	written, err := io.Copy(writer, reader)
	if err != nil {
		_ = writer.Close()
		return toSentinelErrors(err)
	}
	if err = writer.Close(); err != nil {
		return toSentinelErrors(err)
	}
	g.l.Debug("object written", zap.String("bucket", g.bucket), zap.String("object", g.objectName(key)), zap.Int64("size", written))
	return nil
}

func (g *gcs) Delete(ctx context.Context, key string) error {
	err := toSentinelErrors(g.client.Bucket(g.bucket).Object(g.objectName(key)).Delete(ctx))
	if status.IsNotExists(err) {
		return nil
	}
	return err
}

// Close releases both clients
func (g *gcs) Close() error {
	return multierr.Combine(g.readOnlyClient.Close(), g.client.Close())
}
