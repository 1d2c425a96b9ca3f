// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
)

// Store implementations know how to read and write keyed objects to a remote repository.
//
// Typically this is something file system-like. Examples are S3, GCS, local FS, an HTTP server...
// Implementations of this interface are assumed to be fairly simple: keys are slash-separated
// paths relative to the repository base, and directories are an implementation detail.
//
// Get returns an error wrapping status.ErrNotExists when the key is missing.
// Put replaces any existing object.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader) error
	Delete(context.Context, string) error
}

// ReadAll fetches a whole object into memory: this is reserved to small objects such as checksums
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	rdr, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rdr.Close()
	}()
	return io.ReadAll(rdr)
}
