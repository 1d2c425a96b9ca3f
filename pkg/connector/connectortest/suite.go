// Package connectortest checks that a repository connector implementation
// honours the contract of connector.RepositoryConnector.
package connectortest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/oneconcern/depot/internal/rand"
	"github.com/oneconcern/depot/pkg/connector"
	"github.com/oneconcern/depot/pkg/metadata"
	"github.com/oneconcern/depot/pkg/model"
	"github.com/oneconcern/depot/pkg/transfer"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	blockingCount  = 10
	repeatCount    = 100
	blockingSize   = 100000
	testVersion    = "1-test"
	testContent    = "test"
	testGroupID    = "gid"
	testArtifactID = "aid"
)

// Setup describes the connectors under test
type Setup struct {
	// Factory builds the connectors under test
	Factory connector.Factory

	// Repository returns an empty repository
	Repository func(*testing.T) connector.RemoteRepository

	// Clear empties a repository between the rounds of the mkdir test. When nil, rounds reuse its content.
	Clear func(*testing.T, connector.RemoteRepository)

	// Session used by connectors. Defaults to a session on the OS file system.
	// The listener is always replaced with a recording one.
	Session func(*testing.T) *connector.Session
}

type suite struct {
	Setup
}

// Run the connector test suite
func Run(t *testing.T, setup Setup) {
	require.NotNil(t, setup.Factory)
	require.NotNil(t, setup.Repository)
	s := suite{Setup: setup}

	t.Run("SuccessfulEvents", s.testSuccessfulEvents)
	t.Run("FileHandleLeakage", s.testFileHandleLeakage)
	t.Run("Blocking", s.testBlocking)
	t.Run("MkdirConcurrency", s.testMkdirConcurrency)
	t.Run("MergedMetadata", s.testMergedMetadata)
	t.Run("NotFound", s.testNotFound)
	t.Run("Closed", s.testClosed)
}

type fixture struct {
	session   *connector.Session
	listener  *RecordingListener
	repo      connector.RemoteRepository
	connector connector.RepositoryConnector
	dir       string
}

func (s suite) fixture(t *testing.T) *fixture {
	session := connector.DefaultSession()
	if s.Session != nil {
		session = s.Session(t)
	}
	listener := &RecordingListener{}
	session.Listener = listener

	repo := s.Repository(t)
	c, err := s.Factory.NewInstance(context.Background(), session, repo)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, c.Close())
	})

	dir := t.TempDir()
	require.NoError(t, session.LocalFs.MkdirAll(dir, 0o755))
	return &fixture{session: session, listener: listener, repo: repo, connector: c, dir: dir}
}

func (f *fixture) file(t *testing.T, name string, content []byte) string {
	path := filepath.Join(f.dir, name)
	require.NoError(t, afero.WriteFile(f.session.LocalFs, path, content, 0o644))
	return path
}

func (f *fixture) put(t *testing.T, artifacts, metadata []*transfer.Transfer) {
	require.NoError(t, f.connector.Put(context.Background(), artifacts, metadata))
}

func (f *fixture) get(t *testing.T, artifacts, metadata []*transfer.Transfer) {
	require.NoError(t, f.connector.Get(context.Background(), artifacts, metadata))
}

func requireDone(t *testing.T, transfers ...*transfer.Transfer) {
	for _, tr := range transfers {
		require.NoErrorf(t, tr.Err(), "%s", tr)
		require.Equalf(t, transfer.Done, tr.State(), "%s", tr)
	}
}

func testArtifact(version string) model.Artifact {
	return model.NewArtifact(testGroupID, testArtifactID, "ext", "classifier", version)
}

func testMetadata(version string) model.Metadata {
	return model.NewMetadata(testGroupID, testArtifactID, version, metadata.FileName, model.ReleaseOrSnapshot)
}

func (s suite) testSuccessfulEvents(t *testing.T) {
	f := s.fixture(t)
	content := []byte(testContent)
	src := f.file(t, "source", content)

	artUp := transfer.NewArtifactUpload(testArtifact(testVersion), src)
	metaUp := transfer.NewMetadataUpload(testMetadata(testVersion), src)
	f.put(t, []*transfer.Transfer{artUp}, []*transfer.Transfer{metaUp})
	requireDone(t, artUp, metaUp)

	artDest := filepath.Join(f.dir, "artifact")
	metaDest := filepath.Join(f.dir, "metadata")
	artDown := transfer.NewArtifactDownload(testArtifact(testVersion), "", artDest, transfer.ChecksumFail)
	metaDown := transfer.NewMetadataDownload(testMetadata(testVersion), "", metaDest, transfer.ChecksumFail)
	f.get(t, []*transfer.Transfer{artDown}, []*transfer.Transfer{metaDown})
	requireDone(t, artDown, metaDown)

	expected := []transfer.EventType{
		transfer.EventInitiated,
		transfer.EventStarted,
		transfer.EventProgressed,
		transfer.EventSucceeded,
	}
	for _, tr := range []*transfer.Transfer{artUp, metaUp, artDown, metaDown} {
		assert.Equalf(t, expected, f.listener.Types(tr), "events of %s", tr)

		var chunks []byte
		events := f.listener.For(tr)
		for _, e := range events {
			assert.Equal(t, f.repo.URL, e.Resource.RepositoryURL)
			if e.Type == transfer.EventProgressed {
				chunks = append(chunks, e.Chunk...)
			}
		}
		assert.Equal(t, content, chunks)
		assert.EqualValues(t, len(content), events[len(events)-1].Transferred)
	}

	for _, dest := range []string{artDest, metaDest} {
		downloaded, err := afero.ReadFile(f.session.LocalFs, dest)
		require.NoError(t, err)
		assert.Equal(t, content, downloaded)
	}
}

func (s suite) testFileHandleLeakage(t *testing.T) {
	f := s.fixture(t)
	art := testArtifact(testVersion)
	meta := testMetadata(testVersion)

	for i, tc := range []struct {
		name      string
		transfers func(path string) (artifacts, metadata []*transfer.Transfer, download bool)
	}{
		{
			name: "artifact upload",
			transfers: func(path string) ([]*transfer.Transfer, []*transfer.Transfer, bool) {
				return []*transfer.Transfer{transfer.NewArtifactUpload(art, path)}, nil, false
			},
		},
		{
			name: "artifact download",
			transfers: func(path string) ([]*transfer.Transfer, []*transfer.Transfer, bool) {
				return []*transfer.Transfer{transfer.NewArtifactDownload(art, "", path, transfer.ChecksumIgnore)}, nil, true
			},
		},
		{
			name: "metadata upload",
			transfers: func(path string) ([]*transfer.Transfer, []*transfer.Transfer, bool) {
				return nil, []*transfer.Transfer{transfer.NewMetadataUpload(meta, path)}, false
			},
		},
		{
			name: "metadata download",
			transfers: func(path string) ([]*transfer.Transfer, []*transfer.Transfer, bool) {
				return nil, []*transfer.Transfer{transfer.NewMetadataDownload(meta, "", path, transfer.ChecksumIgnore)}, true
			},
		},
	} {
		path := f.file(t, fmt.Sprintf("leak-%d", i), []byte(testContent))
		artifacts, metadata, download := tc.transfers(path)
		if download {
			f.get(t, artifacts, metadata)
		} else {
			f.put(t, artifacts, metadata)
		}
		requireDone(t, append(artifacts, metadata...)...)

		require.NoErrorf(t, f.session.LocalFs.Remove(path), "%s left %s open", tc.name, path)
		leftovers, err := afero.ReadDir(f.session.LocalFs, f.dir)
		require.NoError(t, err)
		require.Emptyf(t, leftovers, "%s left files behind", tc.name)
	}
}

func (s suite) testBlocking(t *testing.T) {
	f := s.fixture(t)
	src := f.file(t, "tmpFile", rand.Pattern([]byte("tmpFile"), blockingSize))

	artUps := make([]*transfer.Transfer, 0, blockingCount)
	metaUps := make([]*transfer.Transfer, 0, blockingCount)
	artDowns := make([]*transfer.Transfer, 0, blockingCount)
	metaDowns := make([]*transfer.Transfer, 0, blockingCount)
	for i := 0; i < blockingCount; i++ {
		version := fmt.Sprintf("%d-test", i)
		artUps = append(artUps, transfer.NewArtifactUpload(testArtifact(version), src))
		metaUps = append(metaUps, transfer.NewMetadataUpload(testMetadata(version), src))
		artDowns = append(artDowns, transfer.NewArtifactDownload(testArtifact(version), "", "", transfer.ChecksumFail))
		metaDowns = append(metaDowns, transfer.NewMetadataDownload(testMetadata(version), "", "", transfer.ChecksumFail))
	}

	f.put(t, artUps, metaUps)
	requireDone(t, artUps...)
	requireDone(t, metaUps...)

	f.get(t, artDowns, metaDowns)
	requireDone(t, artDowns...)
	requireDone(t, metaDowns...)

	for _, tr := range artUps {
		events := f.listener.For(tr)
		require.NotEmpty(t, events)
		assert.EqualValues(t, blockingSize, events[len(events)-1].Transferred)
	}
}

func (s suite) testMkdirConcurrency(t *testing.T) {
	session := connector.DefaultSession()
	if s.Session != nil {
		session = s.Session(t)
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "source")
	require.NoError(t, afero.WriteFile(session.LocalFs, src, []byte(testContent), 0o644))

	artUp := transfer.NewArtifactUpload(testArtifact(testVersion), src)
	metaUp := transfer.NewMetadataUpload(testMetadata(testVersion), src)

	// one connector for every round: directories removed under it must be recreated
	repo := s.Repository(t)
	c, err := s.Factory.NewInstance(context.Background(), session, repo)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, c.Close())
	}()

	for i := 0; i < repeatCount; i++ {
		require.NoError(t, c.Put(context.Background(), []*transfer.Transfer{artUp}, []*transfer.Transfer{metaUp}))
		requireDone(t, artUp, metaUp)

		if s.Clear != nil {
			s.Clear(t, repo)
		}
	}
}

func (s suite) testMergedMetadata(t *testing.T) {
	f := s.fixture(t)
	fs := f.session.LocalFs

	first := metadata.NewVersions(testGroupID, testArtifactID, []string{"1.0"}, metadata.WithFs(fs))
	second := metadata.NewVersions(testGroupID, testArtifactID, []string{"1.1"}, metadata.WithFs(fs))
	ups := []*transfer.Transfer{
		transfer.NewMetadataUpload(first, ""),
		transfer.NewMetadataUpload(second, ""),
	}
	f.put(t, nil, ups)
	requireDone(t, ups...)
	for _, up := range ups {
		assert.NotEmpty(t, up.MergedFile())
	}

	dest := filepath.Join(f.dir, metadata.FileName)
	down := transfer.NewMetadataDownload(first, "", dest, transfer.ChecksumFail)
	f.get(t, nil, []*transfer.Transfer{down})
	requireDone(t, down)

	doc, err := metadata.Read(fs, dest)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.NotNil(t, doc.Versioning)
	assert.ElementsMatch(t, []string{"1.0", "1.1"}, doc.Versioning.Versions)
}

func (s suite) testNotFound(t *testing.T) {
	f := s.fixture(t)

	dest := filepath.Join(f.dir, "missing")
	artDown := transfer.NewArtifactDownload(testArtifact("404"), "", dest, transfer.ChecksumFail)
	metaDown := transfer.NewMetadataDownload(testMetadata("404"), "", "", transfer.ChecksumFail)
	f.get(t, []*transfer.Transfer{artDown}, []*transfer.Transfer{metaDown})

	require.Equal(t, transfer.Failed, artDown.State())
	require.ErrorIs(t, artDown.Err(), transfer.ErrArtifactNotFound)
	require.Equal(t, transfer.Failed, metaDown.State())
	require.ErrorIs(t, metaDown.Err(), transfer.ErrMetadataNotFound)

	exists, err := afero.Exists(f.session.LocalFs, dest)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, []transfer.EventType{transfer.EventInitiated, transfer.EventFailed}, f.listener.Types(artDown))
}

func (s suite) testClosed(t *testing.T) {
	f := s.fixture(t)
	src := f.file(t, "source", []byte(testContent))
	require.NoError(t, f.connector.Close())
	require.NoError(t, f.connector.Close())

	up := transfer.NewArtifactUpload(testArtifact(testVersion), src)
	err := f.connector.Put(context.Background(), []*transfer.Transfer{up}, nil)
	require.ErrorIs(t, err, connector.ErrClosed)
	require.Equal(t, transfer.Failed, up.State())
	require.True(t, transfer.IsCancellation(up.Err()))

	err = f.connector.Get(context.Background(), nil, nil)
	require.ErrorIs(t, err, connector.ErrClosed)
}
