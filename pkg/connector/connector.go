// Copyright © 2018 One Concern

package connector

import (
	"context"
	"io"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/oneconcern/depot/internal/keyedmutex"
	"github.com/oneconcern/depot/pkg/checksum"
	"github.com/oneconcern/depot/pkg/model"
	"github.com/oneconcern/depot/pkg/storage"
	"github.com/oneconcern/depot/pkg/transfer"
	"github.com/segmentio/ksuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RepositoryConnector executes batches of transfers against one repository.
//
// Nil or empty slices are no-ops. Put and Get block until every transfer of the batch
// is terminal, and only return an error when the connector is already closed: the
// submitted transfers are then failed with a cancellation error.
type RepositoryConnector interface {
	Put(ctx context.Context, artifactUploads, metadataUploads []*transfer.Transfer) error
	Get(ctx context.Context, artifactDownloads, metadataDownloads []*transfer.Transfer) error
	Close() error
}

// Connector is the repository connector over a storage.Store.
//
// It is safe for concurrent use. Close must not be called from a transfer listener.
type Connector struct {
	store   storage.Store
	layout  model.Layout
	session Session
	repo    RemoteRepository
	algs    []checksum.Algorithm
	l       *zap.Logger

	staging string

	ctx    context.Context
	cancel context.CancelFunc

	tasks    chan task
	workers  sync.WaitGroup
	inflight sync.WaitGroup
	mx       sync.RWMutex
	closed   bool

	// serializes merge & upload per metadata path
	metadataLocks keyedmutex.Mutex

	// staged merge results by metadata instance, released with the staging directory
	mergedMx sync.Mutex
	merged   map[model.MergeableMetadata]string
}

var _ RepositoryConnector = &Connector{}

// NewConnector builds a connector to the repository served by store, with the given layout.
//
// The connector starts its workers right away: it must be closed to release them.
func NewConnector(store storage.Store, layout model.Layout, session *Session, repo RemoteRepository) (*Connector, error) {
	resolved, algs, err := session.resolve()
	if err != nil {
		return nil, err
	}
	if layout == nil {
		layout = model.DefaultLayout{}
	}

	staging := filepath.Join(resolved.StagingDir, "depot-"+ksuid.New().String())
	if err := resolved.LocalFs.MkdirAll(staging, 0o700); err != nil {
		return nil, ErrInvalidSession.Wrapf("creating staging directory %q: %v", staging, err)
	}

	l := resolved.Logger.With(zap.String("repository", repo.ID), zap.String("url", repo.URL))
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connector{
		store:   storage.Instrument(resolved.Tracer, l, store),
		layout:  layout,
		session: resolved,
		repo:    repo,
		algs:    algs,
		l:       l,
		staging: staging,
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(chan task, resolved.Concurrency),
		merged:  make(map[model.MergeableMetadata]string),
	}

	for i := 0; i < resolved.Concurrency; i++ {
		c.workers.Add(1)
		go func() {
			defer c.workers.Done()
			for tk := range c.tasks {
				c.run(tk)
			}
		}()
	}

	l.Debug("repository connector ready", zap.Int("concurrency", resolved.Concurrency), zap.String("store", store.String()))
	return c, nil
}

// Put uploads artifacts and metadata
func (c *Connector) Put(ctx context.Context, artifactUploads, metadataUploads []*transfer.Transfer) error {
	return c.execute(ctx, transfer.Upload, artifactUploads, metadataUploads)
}

// Get downloads artifacts and metadata
func (c *Connector) Get(ctx context.Context, artifactDownloads, metadataDownloads []*transfer.Transfer) error {
	return c.execute(ctx, transfer.Download, artifactDownloads, metadataDownloads)
}

type task struct {
	ctx       context.Context
	t         *transfer.Transfer
	direction transfer.Direction
	kind      transfer.Kind
	done      func()
}

func (c *Connector) execute(ctx context.Context, direction transfer.Direction, artifacts, metadata []*transfer.Transfer) error {
	batch := make([]task, 0, len(artifacts)+len(metadata))
	seen := make(map[*transfer.Transfer]struct{}, cap(batch))
	add := func(ts []*transfer.Transfer, kind transfer.Kind) {
		for _, t := range ts {
			if t == nil {
				continue
			}
			if _, dupe := seen[t]; dupe {
				continue
			}
			seen[t] = struct{}{}
			batch = append(batch, task{t: t, direction: direction, kind: kind})
		}
	}
	add(artifacts, transfer.ArtifactKind)
	add(metadata, transfer.MetadataKind)

	c.mx.RLock()
	if c.closed {
		c.mx.RUnlock()
		for _, tk := range batch {
			c.reject(tk, transfer.ErrCancelled.Wrap(ErrClosed))
		}
		return ErrClosed
	}
	c.inflight.Add(1)
	c.mx.RUnlock()
	defer c.inflight.Done()

	if len(batch) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	var wg sync.WaitGroup
	for i := range batch {
		tk := batch[i]
		tk.ctx = batchCtx
		tk.done = wg.Done
		wg.Add(1)
		c.tasks <- tk
	}
	wg.Wait()
	return nil
}

// reject fails a transfer which is not executed
func (c *Connector) reject(tk task, err error) {
	if tk.t.Fail(err) {
		c.session.Listener.TransferFailed(transfer.Event{
			Type:     transfer.EventFailed,
			Request:  requestType(tk.direction),
			Resource: transfer.Resource{RepositoryURL: c.repo.URL, File: tk.t.File(), ContentLength: -1, Transfer: tk.t},
			Err:      err,
		})
	}
}

// Close cancels the active transfers, waits for the pending batches to resolve and releases the connector resources.
func (c *Connector) Close() error {
	c.mx.Lock()
	if c.closed {
		c.mx.Unlock()
		return nil
	}
	c.closed = true
	c.mx.Unlock()

	c.cancel()
	c.inflight.Wait()
	close(c.tasks)
	c.workers.Wait()

	c.mergedMx.Lock()
	c.merged = make(map[model.MergeableMetadata]string)
	c.mergedMx.Unlock()

	err := c.session.LocalFs.RemoveAll(c.staging)
	if closer, ok := c.store.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	c.l.Debug("repository connector closed")
	return err
}

func (c *Connector) String() string {
	return "connector to " + c.repo.String()
}

func requestType(d transfer.Direction) transfer.RequestType {
	if d == transfer.Upload {
		return transfer.Put
	}
	return transfer.Get
}

func (c *Connector) rememberMerged(mm model.MergeableMetadata, file string) {
	if !reflect.TypeOf(mm).Comparable() {
		return
	}
	c.mergedMx.Lock()
	defer c.mergedMx.Unlock()
	c.merged[mm] = file
}

func (c *Connector) mergedFile(mm model.MergeableMetadata) (string, bool) {
	if !reflect.TypeOf(mm).Comparable() {
		return "", false
	}
	c.mergedMx.Lock()
	defer c.mergedMx.Unlock()
	file, ok := c.merged[mm]
	return file, ok
}
