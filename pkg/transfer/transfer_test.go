package transfer

import (
	"context"
	"fmt"
	"testing"

	"github.com/oneconcern/depot/pkg/errors"
	"github.com/oneconcern/depot/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArtifact() model.Artifact {
	return model.NewArtifact("gid", "aid", "jar", "", "1-test")
}

func testMetadata() model.Metadata {
	return model.NewMetadata("gid", "aid", "1-test", "maven-metadata.xml", model.ReleaseOrSnapshot)
}

func TestConstructors(t *testing.T) {
	up := NewArtifactUpload(testArtifact(), "/tmp/f")
	assert.Equal(t, ArtifactKind, up.Kind())
	assert.Equal(t, Upload, up.Direction())
	assert.Equal(t, "/tmp/f", up.File())
	assert.Equal(t, New, up.State())
	assert.False(t, up.ExistenceCheck())
	assert.Equal(t, "upload artifact gid:aid:jar:1-test", up.String())

	down := NewArtifactDownload(testArtifact(), "project", "", ChecksumFail)
	assert.Equal(t, Download, down.Direction())
	assert.True(t, down.ExistenceCheck())
	assert.Equal(t, "project", down.Context())
	assert.Equal(t, ChecksumFail, down.ChecksumPolicy())

	mup := NewMetadataUpload(testMetadata(), "/tmp/m")
	assert.Equal(t, MetadataKind, mup.Kind())
	assert.Equal(t, testMetadata(), mup.Metadata())
	assert.Equal(t, "upload metadata gid:aid:1-test/maven-metadata.xml (RELEASE_OR_SNAPSHOT)", mup.String())

	mdown := NewMetadataDownload(testMetadata(), "", "/tmp/m", ChecksumIgnore)
	assert.Equal(t, Download, mdown.Direction())
	assert.False(t, mdown.ExistenceCheck())
}

func TestStateMachine(t *testing.T) {
	tr := NewArtifactUpload(testArtifact(), "f")

	require.False(t, tr.Succeed(), "cannot succeed before being active")
	require.True(t, tr.Begin())
	require.False(t, tr.Begin(), "already active")
	assert.Equal(t, Active, tr.State())

	require.True(t, tr.Succeed())
	assert.Equal(t, Done, tr.State())
	assert.NoError(t, tr.Err())

	require.False(t, tr.Fail(ErrCancelled), "terminal state is stable")
	require.False(t, tr.Succeed())
	assert.Equal(t, Done, tr.State())

	t.Run("resubmission re-arms", func(t *testing.T) {
		require.True(t, tr.Begin())
		require.True(t, tr.Fail(fmt.Errorf("boom")))
		assert.Equal(t, Failed, tr.State())
		assert.EqualError(t, tr.Err(), "boom")

		require.True(t, tr.Begin())
		assert.NoError(t, tr.Err())
		require.True(t, tr.Succeed())
	})

	t.Run("fail before start", func(t *testing.T) {
		queued := NewMetadataDownload(testMetadata(), "", "f", ChecksumWarn)
		require.True(t, queued.Fail(nil))
		assert.Equal(t, Failed, queued.State())
		assert.True(t, errors.Is(queued.Err(), ErrTransfer))
	})

	tr.SetMergedFile("staged")
	assert.Equal(t, "staged", tr.MergedFile())
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestDone(t *testing.T) {
	tr := NewArtifactUpload(testArtifact(), "f")
	assert.True(t, isClosed(tr.Done()), "a new transfer is not running")

	require.True(t, tr.Begin())
	done := tr.Done()
	assert.False(t, isClosed(done))
	require.True(t, tr.Succeed())
	assert.True(t, isClosed(done))

	require.True(t, tr.Begin())
	again := tr.Done()
	assert.False(t, isClosed(again), "resubmission opens a new execution")
	require.True(t, tr.Fail(ErrCancelled))
	assert.True(t, isClosed(again))
	assert.True(t, isClosed(tr.Done()))
}

func TestStates(t *testing.T) {
	assert.False(t, New.Terminal())
	assert.False(t, Active.Terminal())
	assert.True(t, Done.Terminal())
	assert.True(t, Failed.Terminal())
	assert.Equal(t, "FAILED", Failed.String())
	assert.Equal(t, "download", Download.String())
	assert.Equal(t, "metadata", MetadataKind.String())
}

func TestChecksumPolicy(t *testing.T) {
	for name, expected := range map[string]ChecksumPolicy{
		"":       ChecksumWarn,
		"warn":   ChecksumWarn,
		"FAIL":   ChecksumFail,
		"ignore": ChecksumIgnore,
	} {
		p, err := ParseChecksumPolicy(name)
		require.NoError(t, err)
		assert.Equal(t, expected, p)
	}

	_, err := ParseChecksumPolicy("strict")
	require.Error(t, err)
	assert.Equal(t, "fail", ChecksumFail.String())
}

func TestErrors(t *testing.T) {
	csErr := &ChecksumError{Algorithm: "SHA-1", Expected: "aa", Actual: "bb"}
	assert.True(t, IsCorruption(csErr))
	assert.True(t, IsCorruption(fmt.Errorf("download: %w", csErr)))
	assert.True(t, IsCorruption(ErrNoChecksum.Wrapf("for %s", "x")))
	assert.False(t, IsCorruption(ErrCancelled))
	assert.Contains(t, csErr.Error(), "expected aa but was bb")

	assert.True(t, IsCancellation(ErrCancelled.Wrap(context.Canceled)))
	assert.True(t, IsCancellation(context.Canceled))
	assert.False(t, IsCancellation(csErr))

	nf := &NotFoundError{Kind: MetadataKind, Resource: "gid/maven-metadata.xml", Repository: "file:///repo"}
	assert.True(t, errors.Is(nf, ErrMetadataNotFound))
	assert.False(t, errors.Is(nf, ErrArtifactNotFound))
	assert.True(t, IsNotFound(nf))
	assert.Equal(t, "could not find metadata gid/maven-metadata.xml in file:///repo", nf.Error())

	var target *NotFoundError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", &NotFoundError{Resource: "a"}), &target))
	assert.True(t, errors.Is(target, ErrArtifactNotFound))
}
