// Copyright © 2018 One Concern

package localfs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oneconcern/depot/internal/keyedmutex"
	"github.com/oneconcern/depot/pkg/storage"
	"github.com/oneconcern/depot/pkg/storage/status"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
)

const (
	dirMode  = 0o755
	fileMode = 0o644

	// prefix of the objects staged by Put before they are renamed into place
	putStagePrefix = ".put-"
)

// Store is a file system backed storage.Store.
//
// Writes are atomic: objects are staged beside their destination then renamed into place,
// so concurrent readers never observe a partial object.
type Store struct {
	fs   afero.Fs
	dirs keyedmutex.Mutex
}

// New creates a new local file system backed storage model
func New(fs afero.Fs) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{
		fs: fs,
	}
}

// FromURL builds a store rooted at the path of a file:// URL
func FromURL(u string) (*Store, error) {
	return OnFs(afero.NewOsFs(), u)
}

// OnFs builds a store rooted at the path of a file:// URL, resolved on fs
func OnFs(fs afero.Fs, u string) (*Store, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, status.ErrInvalidResource.Wrap(err)
	}
	if parsed.Scheme != "file" {
		return nil, status.ErrInvalidResource.Wrapf("unexpected scheme %q in %q", parsed.Scheme, u)
	}
	root := parsed.Path
	if root == "" {
		// file:relative/path
		root = parsed.Opaque
	}
	if root == "" {
		return nil, status.ErrInvalidResource.Wrapf("no path in %q", u)
	}
	return New(afero.NewBasePathFs(fs, filepath.FromSlash(root))), nil
}

func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimLeft(key, "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", status.ErrInvalidResource.Wrapf("empty key %q", key)
	}
	if strings.HasPrefix(path.Base(cleaned), putStagePrefix) {
		return "", status.ErrInvalidResource.Wrapf("key %q conflicts with put staging names", key)
	}
	return filepath.FromSlash(cleaned), nil
}

// Has tells if a regular file exists for this key
func (l *Store) Has(_ context.Context, key string) (bool, error) {
	name, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	fi, err := l.fs.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return !fi.IsDir(), nil
}

// Get opens the file for this key. The caller must close it.
func (l *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotExists.Wrap(err)
		}
		return nil, err
	}
	fi, err := f.Stat()
	if err == nil && fi.IsDir() {
		_ = f.Close()
		return nil, status.ErrNotExists.Wrapf("%q is a directory", key)
	}
	return f, nil
}

// Put writes the content of source to a staging file beside its destination, then renames it into place.
func (l *Store) Put(ctx context.Context, key string, source io.Reader) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(name)
	if err = l.EnsureDir(dir); err != nil {
		return fmt.Errorf("ensuring directories for %q: %w", key, err)
	}

	staged := filepath.Join(dir, putStagePrefix+ksuid.New().String())
	if err = l.write(ctx, staged, source); err != nil {
		_ = l.fs.Remove(staged)
		return fmt.Errorf("write record for %q: %w", key, err)
	}

	if err = l.fs.Rename(staged, name); err != nil {
		_ = l.fs.Remove(staged)
		return fmt.Errorf("rename record for %q: %w", key, err)
	}
	return nil
}

func (l *Store) write(ctx context.Context, name string, source io.Reader) (err error) {
	target, err := l.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := target.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	_, err = io.Copy(target, source)
	return err
}

// EnsureDir creates a directory and its parents.
//
// Creation is serialized per directory, and finding the directory already there
// (e.g. created by another process) is a success.
func (l *Store) EnsureDir(dir string) error {
	if dir == "" || dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	unlock := l.dirs.Lock(dir)
	defer unlock()

	if isDir(l.fs, dir) {
		return nil
	}
	err := l.fs.MkdirAll(dir, dirMode)
	if err != nil && isDir(l.fs, dir) {
		return nil
	}
	return err
}

func isDir(fs afero.Fs, dir string) bool {
	fi, err := fs.Stat(dir)
	return err == nil && fi.IsDir()
}

// Delete removes the object for this key. Removing a missing object is not an error.
func (l *Store) Delete(_ context.Context, key string) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := l.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %q: %w", key, err)
	}
	return nil
}

func (l *Store) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}

var _ storage.Store = &Store{}
