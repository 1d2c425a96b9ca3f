package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/depot/pkg/checksum"
	"github.com/oneconcern/depot/pkg/errors"
	"github.com/oneconcern/depot/pkg/metadata"
	"github.com/oneconcern/depot/pkg/model"
	"github.com/oneconcern/depot/pkg/storage"
	"github.com/oneconcern/depot/pkg/storage/localfs"
	"github.com/oneconcern/depot/pkg/transfer"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

const content = "some artifact content"

var (
	testArtifact = model.NewArtifact("org.example", "lib", "jar", "", "1.0")
	testRepo     = RemoteRepository{ID: "test", URL: "mem://test"}
)

func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// listener counting events by type
type countingListener struct {
	transfer.NopListener
	mx     sync.Mutex
	counts map[transfer.EventType]int

	onStarted   func(transfer.Event)
	onInitiated func(transfer.Event) error
}

func (l *countingListener) inc(typ transfer.EventType) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.counts == nil {
		l.counts = make(map[transfer.EventType]int)
	}
	l.counts[typ]++
}

func (l *countingListener) count(typ transfer.EventType) int {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.counts[typ]
}

func (l *countingListener) TransferInitiated(e transfer.Event) error {
	l.inc(e.Type)
	if l.onInitiated != nil {
		return l.onInitiated(e)
	}
	return nil
}

func (l *countingListener) TransferStarted(e transfer.Event) error {
	l.inc(e.Type)
	if l.onStarted != nil {
		l.onStarted(e)
	}
	return nil
}

func (l *countingListener) TransferCorrupted(e transfer.Event) error {
	l.inc(e.Type)
	return nil
}

func (l *countingListener) TransferSucceeded(e transfer.Event) { l.inc(e.Type) }

func (l *countingListener) TransferFailed(e transfer.Event) { l.inc(e.Type) }

type env struct {
	fs       afero.Fs
	store    *localfs.Store
	listener *countingListener
	session  *Session
}

func newEnv() *env {
	fs := afero.NewMemMapFs()
	listener := &countingListener{}
	return &env{
		fs:       fs,
		store:    localfs.New(afero.NewMemMapFs()),
		listener: listener,
		session:  &Session{LocalFs: fs, Listener: listener, StagingDir: "/staging"},
	}
}

func (e *env) connector(t *testing.T, store storage.Store) *Connector {
	if store == nil {
		store = e.store
	}
	c, err := NewConnector(store, nil, e.session, testRepo)
	require.NoError(t, err)
	return c
}

func (e *env) file(t *testing.T, name, data string) string {
	path := filepath.Join("/work", name)
	require.NoError(t, afero.WriteFile(e.fs, path, []byte(data), 0o644))
	return path
}

func (e *env) upload(t *testing.T, c *Connector) {
	up := transfer.NewArtifactUpload(testArtifact, e.file(t, "upload", content))
	require.NoError(t, c.Put(context.Background(), []*transfer.Transfer{up}, nil))
	require.NoError(t, up.Err())
}

func (e *env) download(t *testing.T, c *Connector, policy transfer.ChecksumPolicy) (*transfer.Transfer, string) {
	dest := filepath.Join("/work", "downloads", "lib.jar")
	down := transfer.NewArtifactDownload(testArtifact, "", dest, policy)
	require.NoError(t, c.Get(context.Background(), []*transfer.Transfer{down}, nil))
	return down, dest
}

func TestUploadWritesChecksums(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	e.upload(t, c)

	key := model.DefaultLayout{}.ArtifactPath(testArtifact)
	assert.Equal(t, "org/example/lib/1.0/lib-1.0.jar", key)

	stored, err := storage.ReadAll(context.Background(), e.store, key)
	require.NoError(t, err)
	assert.Equal(t, content, string(stored))

	sums, err := checksum.Compute(strings.NewReader(content), checksum.Defaults()...)
	require.NoError(t, err)
	for _, alg := range checksum.Defaults() {
		sidecar, err := storage.ReadAll(context.Background(), e.store, alg.Sidecar(key))
		require.NoError(t, err)
		assert.Equal(t, sums[alg.Extension], string(sidecar))
	}
}

func TestChecksumPolicies(t *testing.T) {
	defer verifyNoLeaks(t)

	for _, tc := range []struct {
		name          string
		policy        transfer.ChecksumPolicy
		sessionPolicy transfer.ChecksumPolicy
		expectFailure bool
		corrupted     int
	}{
		{name: "fail retries once then fails", policy: transfer.ChecksumFail, expectFailure: true, corrupted: 1},
		{name: "warn succeeds", policy: transfer.ChecksumWarn, corrupted: 1},
		{name: "ignore does not verify", policy: transfer.ChecksumIgnore},
		{name: "session policy applies", policy: transfer.ChecksumWarn, sessionPolicy: transfer.ChecksumFail, expectFailure: true, corrupted: 1},
		{name: "transfer policy overrides session", policy: transfer.ChecksumIgnore, sessionPolicy: transfer.ChecksumFail},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv()
			e.session.ChecksumPolicy = tc.sessionPolicy
			c := e.connector(t, nil)
			defer func() { require.NoError(t, c.Close()) }()

			e.upload(t, c)
			key := model.DefaultLayout{}.ArtifactPath(testArtifact)
			require.NoError(t, e.store.Put(context.Background(), checksum.SHA1.Sidecar(key), strings.NewReader("0badc0de")))

			down, dest := e.download(t, c, tc.policy)
			assert.Equal(t, tc.corrupted, e.listener.count(transfer.EventCorrupted))

			exists, err := afero.Exists(e.fs, dest)
			require.NoError(t, err)
			if tc.expectFailure {
				require.Equal(t, transfer.Failed, down.State())
				var cerr *transfer.ChecksumError
				require.True(t, errors.As(down.Err(), &cerr))
				assert.Equal(t, checksum.SHA1.Name, cerr.Algorithm)
				assert.Equal(t, "0badc0de", cerr.Expected)
				assert.True(t, transfer.IsCorruption(down.Err()))
				assert.False(t, exists)
				return
			}
			require.NoError(t, down.Err())
			require.Equal(t, transfer.Done, down.State())
			assert.True(t, exists)
		})
	}
}

// flakyStore corrupts the first reads of a key
type flakyStore struct {
	storage.Store
	key      string
	failures atomic.Int32
}

func (f *flakyStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == f.key && f.failures.Dec() >= 0 {
		return io.NopCloser(strings.NewReader("garbage")), nil
	}
	return f.Store.Get(ctx, key)
}

func TestChecksumFailRetriesDownload(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	flaky := &flakyStore{Store: e.store, key: model.DefaultLayout{}.ArtifactPath(testArtifact)}
	flaky.failures.Store(1)
	c := e.connector(t, flaky)
	defer func() { require.NoError(t, c.Close()) }()

	e.upload(t, c)
	down, dest := e.download(t, c, transfer.ChecksumFail)
	require.NoError(t, down.Err())
	assert.Equal(t, 1, e.listener.count(transfer.EventCorrupted))

	downloaded, err := afero.ReadFile(e.fs, dest)
	require.NoError(t, err)
	assert.Equal(t, content, string(downloaded))
}

func TestMissingChecksum(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	e.upload(t, c)
	key := model.DefaultLayout{}.ArtifactPath(testArtifact)
	for _, alg := range checksum.Defaults() {
		require.NoError(t, e.store.Delete(context.Background(), alg.Sidecar(key)))
	}

	down, _ := e.download(t, c, transfer.ChecksumFail)
	require.ErrorIs(t, down.Err(), transfer.ErrNoChecksum)

	down, _ = e.download(t, c, transfer.ChecksumWarn)
	require.NoError(t, down.Err())
	assert.Equal(t, 0, e.listener.count(transfer.EventCorrupted))
}

func TestCancelledContext(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	up := transfer.NewArtifactUpload(testArtifact, e.file(t, "upload", content))
	require.NoError(t, c.Put(ctx, []*transfer.Transfer{up}, nil))
	require.Equal(t, transfer.Failed, up.State())
	assert.True(t, transfer.IsCancellation(up.Err()))
	assert.ErrorIs(t, up.Err(), transfer.ErrCancelled)

	has, err := e.store.Has(context.Background(), model.DefaultLayout{}.ArtifactPath(testArtifact))
	require.NoError(t, err)
	assert.False(t, has)
}

// endlessStore serves a never ending stream
type endlessStore struct {
	storage.Store
}

type zeroes struct{}

func (zeroes) Read(b []byte) (int, error) {
	for i := range b {
		b[i] = 0
	}
	time.Sleep(time.Millisecond)
	return len(b), nil
}

func (endlessStore) Get(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(zeroes{}), nil
}

func TestInterruptActiveDownload(t *testing.T) {
	for _, interrupt := range []string{"cancel", "close"} {
		interrupt := interrupt
		t.Run(interrupt, func(t *testing.T) {
			defer verifyNoLeaks(t)
			e := newEnv()
			started := make(chan struct{})
			e.listener.onStarted = func(transfer.Event) { close(started) }
			c := e.connector(t, endlessStore{Store: e.store})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			dest := filepath.Join("/work", "endless")
			down := transfer.NewArtifactDownload(testArtifact, "", dest, transfer.ChecksumFail)

			done := make(chan error)
			go func() {
				done <- c.Get(ctx, []*transfer.Transfer{down}, nil)
			}()

			<-started
			if interrupt == "cancel" {
				cancel()
				require.NoError(t, <-done)
				require.NoError(t, c.Close())
			} else {
				require.NoError(t, c.Close())
				require.NoError(t, <-done)
			}

			require.Equal(t, transfer.Failed, down.State())
			assert.ErrorIs(t, down.Err(), transfer.ErrCancelled)
			assert.Equal(t, 1, e.listener.count(transfer.EventFailed))

			leftovers, err := afero.ReadDir(e.fs, "/work")
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestCloseRemovesStaging(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	c := e.connector(t, nil)

	exists, err := afero.DirExists(e.fs, c.staging)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, c.Close())
	exists, err = afero.DirExists(e.fs, c.staging)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListenerErrorFailsTransfer(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	vetoed := errors.New("vetoed")
	e.listener.onInitiated = func(transfer.Event) error { return vetoed }
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	up := transfer.NewArtifactUpload(testArtifact, e.file(t, "upload", content))
	require.NoError(t, c.Put(context.Background(), []*transfer.Transfer{up}, nil))
	require.Equal(t, transfer.Failed, up.State())
	assert.ErrorIs(t, up.Err(), vetoed)
	assert.Equal(t, 0, e.listener.count(transfer.EventStarted))
}

func TestResubmission(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	up := transfer.NewArtifactUpload(testArtifact, e.file(t, "upload", content))
	for i := 0; i < 3; i++ {
		// duplicates within a batch run once
		require.NoError(t, c.Put(context.Background(), []*transfer.Transfer{up, up, nil}, nil))
		require.Equal(t, transfer.Done, up.State())
	}
	assert.Equal(t, 3, e.listener.count(transfer.EventSucceeded))
}

func TestConcurrentSubmissionWaitsForTransfer(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	started, release := make(chan struct{}), make(chan struct{})
	e.listener.onStarted = func(transfer.Event) {
		close(started)
		<-release
	}
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	up := transfer.NewArtifactUpload(testArtifact, e.file(t, "upload", content))
	var eg errgroup.Group
	eg.Go(func() error {
		return c.Put(context.Background(), []*transfer.Transfer{up}, nil)
	})
	<-started

	var second atomic.Bool
	secondState := make(chan transfer.State, 1)
	eg.Go(func() error {
		err := c.Put(context.Background(), []*transfer.Transfer{up}, nil)
		second.Store(true)
		secondState <- up.State()
		return err
	})
	assert.Never(t, second.Load, 100*time.Millisecond, 10*time.Millisecond, "second Put returned while the transfer is active")

	close(release)
	require.NoError(t, eg.Wait())
	assert.Equal(t, transfer.Done, <-secondState)
	assert.Equal(t, 1, e.listener.count(transfer.EventSucceeded))
}

func TestMergedMetadataReusedAcrossTransfers(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	v := metadata.NewVersions("org.example", "lib", []string{"1.0"}, metadata.WithFs(e.fs))
	first := transfer.NewMetadataUpload(v, "")
	require.NoError(t, c.Put(context.Background(), nil, []*transfer.Transfer{first}))
	require.NoError(t, first.Err())
	require.True(t, v.IsMerged())

	second := transfer.NewMetadataUpload(v, "")
	require.NoError(t, c.Put(context.Background(), nil, []*transfer.Transfer{second}))
	require.Equal(t, transfer.Done, second.State(), "%v", second.Err())
	assert.Equal(t, first.MergedFile(), second.MergedFile())

	t.Run("merged by another connector", func(t *testing.T) {
		other := e.connector(t, nil)
		defer func() { require.NoError(t, other.Close()) }()

		third := transfer.NewMetadataUpload(v, "")
		require.NoError(t, other.Put(context.Background(), nil, []*transfer.Transfer{third}))
		require.Equal(t, transfer.Failed, third.State())
		assert.ErrorIs(t, third.Err(), transfer.ErrNoMergedContent)
	})
}

func TestMisplacedTransfer(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	up := transfer.NewArtifactUpload(testArtifact, e.file(t, "upload", content))
	down := transfer.NewArtifactDownload(testArtifact, "", "", transfer.ChecksumWarn)
	require.NoError(t, c.Put(context.Background(), nil, []*transfer.Transfer{up, down}))
	assert.ErrorIs(t, up.Err(), transfer.ErrTransfer)
	assert.ErrorIs(t, down.Err(), transfer.ErrTransfer)
}

type failingMerge struct {
	model.DefaultMetadata
}

func (failingMerge) Merge(string, string) error { return fmt.Errorf("cannot merge") }

func (failingMerge) IsMerged() bool { return false }

func TestMergeFailureFailsOnlyThatTransfer(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	bad := transfer.NewMetadataUpload(failingMerge{model.NewMetadata("org.example", "bad", "", metadata.FileName, model.Release)}, "")
	good := transfer.NewMetadataUpload(metadata.NewVersions("org.example", "lib", []string{"1.0"}, metadata.WithFs(e.fs)), "")
	up := transfer.NewArtifactUpload(testArtifact, e.file(t, "upload", content))
	require.NoError(t, c.Put(context.Background(), []*transfer.Transfer{up}, []*transfer.Transfer{bad, good}))

	require.Equal(t, transfer.Failed, bad.State())
	assert.ErrorIs(t, bad.Err(), transfer.ErrMerge)
	assert.Empty(t, bad.MergedFile())
	require.NoError(t, good.Err())
	require.NoError(t, up.Err())
}

func TestConcurrentMerges(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	e.session.Concurrency = 8
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	const batches = 20
	var eg errgroup.Group
	ups := make([]*transfer.Transfer, batches)
	for i := 0; i < batches; i++ {
		up := transfer.NewMetadataUpload(metadata.NewVersions("org.example", "lib", []string{fmt.Sprintf("1.%d", i)}, metadata.WithFs(e.fs)), "")
		ups[i] = up
		eg.Go(func() error {
			return c.Put(context.Background(), nil, []*transfer.Transfer{up})
		})
	}
	require.NoError(t, eg.Wait())

	key := model.DefaultLayout{}.MetadataPath(ups[0].Metadata())
	raw, err := storage.ReadAll(context.Background(), e.store, key)
	require.NoError(t, err)
	doc, err := metadata.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.NotNil(t, doc.Versioning)
	assert.Len(t, doc.Versioning.Versions, batches)
	for _, up := range ups {
		require.NoError(t, up.Err())
	}
}

func TestSnapshotBuilds(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	stamp := time.Date(2011, 8, 16, 14, 16, 52, 0, time.UTC)
	var last *metadata.Snapshot
	for build := 1; build <= 2; build++ {
		last = metadata.NewSnapshot("org.example", "lib", "1.0-SNAPSHOT", stamp, metadata.WithFs(e.fs))
		last.AddArtifact(model.NewArtifact("org.example", "lib", "jar", "", "1.0-SNAPSHOT"))
		up := transfer.NewMetadataUpload(last, "")
		require.NoError(t, c.Put(context.Background(), nil, []*transfer.Transfer{up}))
		require.NoError(t, up.Err())

		// already merged transfers upload their merged file as is
		require.NoError(t, c.Put(context.Background(), nil, []*transfer.Transfer{up}))
		require.NoError(t, up.Err())
	}
	assert.Equal(t, "1.0-20110816.141652-2", last.SnapshotVersion())

	raw, err := storage.ReadAll(context.Background(), e.store, "org/example/lib/1.0-SNAPSHOT/maven-metadata.xml")
	require.NoError(t, err)
	doc, err := metadata.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.NotNil(t, doc.Versioning)
	require.NotNil(t, doc.Versioning.Snapshot)
	assert.Equal(t, 2, doc.Versioning.Snapshot.BuildNumber)
}

func TestNewConnectorInvalidSession(t *testing.T) {
	e := newEnv()
	e.session.ChecksumAlgorithms = []string{"crc32"}
	_, err := NewConnector(e.store, nil, e.session, testRepo)
	require.ErrorIs(t, err, ErrInvalidSession)
	require.ErrorIs(t, err, checksum.ErrUnknownAlgorithm)
}

func TestAlternateChecksums(t *testing.T) {
	defer verifyNoLeaks(t)
	e := newEnv()
	e.session.ChecksumAlgorithms = []string{"blake2b"}
	c := e.connector(t, nil)
	defer func() { require.NoError(t, c.Close()) }()

	e.upload(t, c)
	key := model.DefaultLayout{}.ArtifactPath(testArtifact)
	has, err := e.store.Has(context.Background(), checksum.BLAKE2b.Sidecar(key))
	require.NoError(t, err)
	assert.True(t, has)
	has, err = e.store.Has(context.Background(), checksum.SHA1.Sidecar(key))
	require.NoError(t, err)
	assert.False(t, has)

	down, _ := e.download(t, c, transfer.ChecksumFail)
	require.NoError(t, down.Err())
}
