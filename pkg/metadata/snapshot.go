package metadata

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oneconcern/depot/pkg/model"
)

// Snapshot is the version level index of the builds of a snapshot.
//
// Every merge publishes a new build: its number follows the last published one.
type Snapshot struct {
	groupID     string
	artifactID  string
	baseVersion string
	timestamp   time.Time
	files       []SnapshotVersion
	options

	mx              sync.Mutex
	merged          bool
	snapshotVersion string
}

// NewSnapshot prepares the publication of a build of a snapshot version, stamped at timestamp
func NewSnapshot(groupID, artifactID, baseVersion string, timestamp time.Time, opts ...Option) *Snapshot {
	return &Snapshot{
		groupID:     groupID,
		artifactID:  artifactID,
		baseVersion: model.BaseVersion(baseVersion),
		timestamp:   timestamp,
		options:     defaultOptions(opts),
	}
}

// AddArtifact registers a file of the build, so its resolved version is indexed
func (s *Snapshot) AddArtifact(a model.Artifact) {
	s.mx.Lock()
	defer s.mx.Unlock()
	for _, f := range s.files {
		if f.Extension == a.Extension && f.Classifier == a.Classifier {
			return
		}
	}
	s.files = append(s.files, SnapshotVersion{Extension: a.Extension, Classifier: a.Classifier})
}

// GroupID of the snapshot
func (s *Snapshot) GroupID() string { return s.groupID }

// ArtifactID of the snapshot
func (s *Snapshot) ArtifactID() string { return s.artifactID }

// Version is the base version, e.g. 1.0-SNAPSHOT
func (s *Snapshot) Version() string { return s.baseVersion }

// Type is maven-metadata.xml
func (s *Snapshot) Type() string { return FileName }

// Nature of the index
func (s *Snapshot) Nature() model.Nature { return model.Snapshot }

// IsMerged is true once Merge succeeded
func (s *Snapshot) IsMerged() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.merged
}

// SnapshotVersion is the timestamped version of the merged build, e.g. 1.0-20110816.141652-3.
// It is empty until merged.
func (s *Snapshot) SnapshotVersion() string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.snapshotVersion
}

// Merge increments the build number found at current, if any, and writes the result
func (s *Snapshot) Merge(current, result string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.merged {
		return ErrAlreadyMerged
	}

	doc, err := Read(s.fs, current)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &Document{}
	}
	if err := checkCoordinates(doc, s.groupID, s.artifactID); err != nil {
		return err
	}
	if doc.Version != "" && doc.Version != s.baseVersion {
		return ErrCorrupt.Wrapf("metadata is for version %q, not %q", doc.Version, s.baseVersion)
	}

	doc.ModelVersion = "1.1.0"
	doc.GroupID = s.groupID
	doc.ArtifactID = s.artifactID
	doc.Version = s.baseVersion
	versioning := doc.versioning()

	buildNumber := 1
	if versioning.Snapshot != nil {
		buildNumber = versioning.Snapshot.BuildNumber + 1
	}
	timestamp := s.timestamp.UTC().Format(timestampFormat)
	lastUpdated := s.clock().UTC().Format(lastUpdatedFormat)
	version := strings.TrimSuffix(s.baseVersion, "SNAPSHOT") + timestamp + "-" + strconv.Itoa(buildNumber)

	versioning.Snapshot = &SnapshotInfo{Timestamp: timestamp, BuildNumber: buildNumber}
	versioning.LastUpdated = lastUpdated
	for _, f := range s.files {
		entry := SnapshotVersion{Classifier: f.Classifier, Extension: f.Extension, Value: version, Updated: lastUpdated}
		replaced := false
		for i, existing := range versioning.SnapshotVersions {
			if existing.Extension == f.Extension && existing.Classifier == f.Classifier {
				versioning.SnapshotVersions[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			versioning.SnapshotVersions = append(versioning.SnapshotVersions, entry)
		}
	}

	if err := Write(s.fs, result, doc); err != nil {
		return err
	}
	s.merged = true
	s.snapshotVersion = version
	return nil
}

var _ model.MergeableMetadata = &Snapshot{}
