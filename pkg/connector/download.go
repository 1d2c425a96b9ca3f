// Copyright © 2018 One Concern

package connector

import (
	"io"
	"path/filepath"

	"github.com/oneconcern/depot/pkg/checksum"
	"github.com/oneconcern/depot/pkg/errors"
	"github.com/oneconcern/depot/pkg/storage"
	"github.com/oneconcern/depot/pkg/storage/status"
	"github.com/oneconcern/depot/pkg/transfer"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

func (x *execution) download() error {
	key := x.resource.Name

	if x.t.ExistenceCheck() {
		found, err := x.store.Has(x.ctx, key)
		switch {
		case status.IsNotExists(err):
			return x.notFound(key, err)
		case err != nil:
			return err
		case !found:
			return x.notFound(key, nil)
		}
		return x.session.Listener.TransferStarted(x.event(transfer.EventStarted))
	}

	policy := x.session.policy(x.t)
	attempts := 1
	if policy == transfer.ChecksumFail {
		attempts = 2
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = x.downloadOnce(key, policy, attempt == 1)
		var cerr *transfer.ChecksumError
		if !errors.As(err, &cerr) {
			return err
		}
		if attempt < attempts {
			x.l.Info("checksum mismatch, retrying download", zap.Error(err))
		}
	}
	return err
}

func (x *execution) downloadOnce(key string, policy transfer.ChecksumPolicy, first bool) error {
	rdr, err := x.store.Get(x.ctx, key)
	if err != nil {
		if status.IsNotExists(err) {
			return x.notFound(key, err)
		}
		return err
	}
	defer func() {
		_ = rdr.Close()
	}()

	if !first {
		x.transferred.Store(0)
	} else {
		if err = x.session.Listener.TransferStarted(x.event(transfer.EventStarted)); err != nil {
			return err
		}
	}

	fs := x.session.LocalFs
	dest := x.t.File()
	dir := filepath.Dir(dest)
	if err = fs.MkdirAll(dir, 0o755); err != nil {
		return transfer.ErrTransfer.Wrapf("creating %q: %v", dir, err)
	}

	// stage beside the destination so that the final rename does not cross devices
	part := filepath.Join(dir, "."+filepath.Base(dest)+"-"+ksuid.New().String()+".part")
	sums, err := x.stream(rdr, part)
	if err != nil {
		return err
	}

	if err = x.verify(key, policy, sums); err != nil {
		_ = fs.Remove(part)
		return err
	}

	if err = fs.Rename(part, dest); err != nil {
		_ = fs.Remove(part)
		return transfer.ErrTransfer.Wrapf("moving download to %q: %v", dest, err)
	}
	return nil
}

// stream the remote content into a local file and digest it on the way
func (x *execution) stream(rdr io.Reader, path string) (sums map[string]string, err error) {
	fs := x.session.LocalFs
	fileHandle, err := fs.Create(path)
	if err != nil {
		return nil, transfer.ErrTransfer.Wrapf("creating %q: %v", path, err)
	}
	defer func() {
		if ers := fileHandle.Close(); ers != nil && err == nil {
			err = transfer.ErrTransfer.Wrapf("closing %q: %v", path, ers)
		}
		if err != nil {
			_ = fs.Remove(path)
		}
	}()

	digester := checksum.NewDigester(x.algs)
	buf := make([]byte, x.session.BufferSize)
	if _, err = io.CopyBuffer(onlyWriter{fileHandle}, io.TeeReader(x.progress(rdr), digester), buf); err != nil {
		return nil, err
	}
	return digester.Sums(), nil
}

// verify the digests of a download against the checksums published by the repository
func (x *execution) verify(key string, policy transfer.ChecksumPolicy, sums map[string]string) error {
	if policy == transfer.ChecksumIgnore {
		return nil
	}

	for _, alg := range x.algs {
		content, err := storage.ReadAll(x.ctx, x.store, alg.Sidecar(key))
		if err != nil {
			if status.IsNotExists(err) {
				continue
			}
			if policy == transfer.ChecksumFail || x.ctx.Err() != nil {
				return err
			}
			x.l.Warn("could not retrieve checksum", zap.String("algorithm", alg.Name), zap.Error(err))
			return nil
		}

		expected := checksum.ParseSidecar(content)
		actual := sums[alg.Extension]
		if expected == actual {
			return nil
		}

		cerr := &transfer.ChecksumError{Algorithm: alg.Name, Expected: expected, Actual: actual}
		if !x.corrupted {
			x.corrupted = true
			ev := x.event(transfer.EventCorrupted)
			ev.Err = cerr
			if err = x.session.Listener.TransferCorrupted(ev); err != nil {
				return err
			}
		}
		if policy == transfer.ChecksumFail {
			return cerr
		}
		x.l.Warn("checksum mismatch", zap.Error(cerr))
		return nil
	}

	if policy == transfer.ChecksumFail {
		return transfer.ErrNoChecksum.Wrapf("for %s", key)
	}
	x.l.Warn("no checksum available")
	return nil
}

// fetch a remote resource into a local file, without notifying the listener
func (x *execution) fetch(key, path string) (err error) {
	rdr, err := x.store.Get(x.ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		_ = rdr.Close()
	}()

	fs := x.session.LocalFs
	fileHandle, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if ers := fileHandle.Close(); ers != nil && err == nil {
			err = ers
		}
		if err != nil {
			_ = fs.Remove(path)
		}
	}()

	buf := make([]byte, x.session.BufferSize)
	_, err = io.CopyBuffer(onlyWriter{fileHandle}, &ctxReader{ctx: x.ctx, r: rdr}, buf)
	return err
}

// onlyWriter hides io.ReaderFrom so that copies use the session buffer
type onlyWriter struct {
	io.Writer
}
