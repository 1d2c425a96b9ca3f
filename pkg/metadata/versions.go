package metadata

import (
	"sync"

	"github.com/oneconcern/depot/pkg/model"
)

// Versions is the artifact level index of versions, merged with the published index on upload
type Versions struct {
	groupID    string
	artifactID string
	pending    []string
	options

	mx     sync.Mutex
	merged bool
}

// NewVersions prepares the publication of new versions of an artifact
func NewVersions(groupID, artifactID string, versions []string, opts ...Option) *Versions {
	return &Versions{
		groupID:    groupID,
		artifactID: artifactID,
		pending:    append([]string(nil), versions...),
		options:    defaultOptions(opts),
	}
}

// GroupID of the artifact
func (v *Versions) GroupID() string { return v.groupID }

// ArtifactID of the artifact
func (v *Versions) ArtifactID() string { return v.artifactID }

// Version is empty: the index spans all versions
func (v *Versions) Version() string { return "" }

// Type is maven-metadata.xml
func (v *Versions) Type() string { return FileName }

// Nature of the index
func (v *Versions) Nature() model.Nature { return model.ReleaseOrSnapshot }

// IsMerged is true once Merge succeeded
func (v *Versions) IsMerged() bool {
	v.mx.Lock()
	defer v.mx.Unlock()
	return v.merged
}

// Merge adds the pending versions to the index found at current, if any, and writes the result.
//
// Known versions keep their order, new ones are appended. The latest and release fields
// point to the last pending version, and the last pending release respectively.
func (v *Versions) Merge(current, result string) error {
	v.mx.Lock()
	defer v.mx.Unlock()
	if v.merged {
		return ErrAlreadyMerged
	}

	doc, err := Read(v.fs, current)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &Document{}
	}
	if err := checkCoordinates(doc, v.groupID, v.artifactID); err != nil {
		return err
	}

	doc.ModelVersion = "1.1.0"
	doc.GroupID = v.groupID
	doc.ArtifactID = v.artifactID
	versioning := doc.versioning()

	known := make(map[string]struct{}, len(versioning.Versions))
	for _, version := range versioning.Versions {
		known[version] = struct{}{}
	}
	for _, version := range v.pending {
		if _, ok := known[version]; !ok {
			versioning.Versions = append(versioning.Versions, version)
			known[version] = struct{}{}
		}
		versioning.Latest = version
		if !model.IsSnapshotVersion(version) {
			versioning.Release = version
		}
	}
	versioning.LastUpdated = v.clock().UTC().Format(lastUpdatedFormat)

	if err := Write(v.fs, result, doc); err != nil {
		return err
	}
	v.merged = true
	return nil
}

func checkCoordinates(doc *Document, groupID, artifactID string) error {
	if doc.GroupID != "" && doc.GroupID != groupID {
		return ErrCorrupt.Wrapf("metadata is for group %q, not %q", doc.GroupID, groupID)
	}
	if doc.ArtifactID != "" && doc.ArtifactID != artifactID {
		return ErrCorrupt.Wrapf("metadata is for artifact %q, not %q", doc.ArtifactID, artifactID)
	}
	return nil
}

var _ model.MergeableMetadata = &Versions{}
