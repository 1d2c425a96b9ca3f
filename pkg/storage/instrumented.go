// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// Instrument decorates a store with a tracing span and a debug log entry for every call
func Instrument(tr opentracing.Tracer, logger *zap.Logger, store Store) Store {
	if tr == nil {
		tr = opentracing.NoopTracer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedStore{
		tr:    tr,
		store: store,
		l:     logger.With(zap.String("store", store.String())),
	}
}

type instrumentedStore struct {
	store Store
	tr    opentracing.Tracer
	l     *zap.Logger
}

// Unwrap yields the decorated store
func (i *instrumentedStore) Unwrap() Store {
	return i.store
}

func (i *instrumentedStore) opName(name string) string {
	return strings.Join([]string{"storage", i.String(), name}, ".")
}

func (i *instrumentedStore) spanFromContext(ctx context.Context, name string, key string) opentracing.Span {
	parent := opentracing.SpanFromContext(ctx)
	var span opentracing.Span
	if parent != nil {
		span = i.tr.StartSpan(name, opentracing.ChildOf(parent.Context()))
	} else {
		span = i.tr.StartSpan(name)
	}
	span.SetTag("key", key)
	return span
}

func finish(span opentracing.Span, err error) {
	if err != nil {
		span.SetTag("error", true)
		span.LogKV("message", err.Error())
	}
	span.Finish()
}

func (i *instrumentedStore) Has(ctx context.Context, key string) (has bool, err error) {
	span := i.spanFromContext(ctx, i.opName("Has"), key)
	defer func() { finish(span, err) }()
	i.l.Debug("storage has", zap.String("key", key))

	return i.store.Has(ctx, key)
}

func (i *instrumentedStore) Get(ctx context.Context, key string) (rdr io.ReadCloser, err error) {
	span := i.spanFromContext(ctx, i.opName("Get"), key)
	defer func() { finish(span, err) }()

	i.l.Debug("storage get", zap.String("key", key))
	return i.store.Get(ctx, key)
}

func (i *instrumentedStore) Put(ctx context.Context, key string, rdr io.Reader) (err error) {
	span := i.spanFromContext(ctx, i.opName("Put"), key)
	defer func() { finish(span, err) }()

	i.l.Debug("storage put", zap.String("key", key))
	return i.store.Put(ctx, key, rdr)
}

func (i *instrumentedStore) Delete(ctx context.Context, key string) (err error) {
	span := i.spanFromContext(ctx, i.opName("Delete"), key)
	defer func() { finish(span, err) }()

	i.l.Debug("storage delete", zap.String("key", key))
	return i.store.Delete(ctx, key)
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}

// Close closes the decorated store, when it supports it
func (i *instrumentedStore) Close() error {
	if closer, ok := i.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
