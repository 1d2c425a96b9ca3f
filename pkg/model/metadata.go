// Copyright © 2018 One Concern

package model

// Nature tells which kind of versions a metadata indexes
type Nature uint8

// Natures of metadata
const (
	Release Nature = iota
	Snapshot
	ReleaseOrSnapshot
)

func (n Nature) String() string {
	switch n {
	case Release:
		return "RELEASE"
	case Snapshot:
		return "SNAPSHOT"
	case ReleaseOrSnapshot:
		return "RELEASE_OR_SNAPSHOT"
	default:
		return "UNKNOWN"
	}
}

// Metadata identifies an index file published in a repository.
//
// Any of the group, artifact and version may be empty, for repository, group and artifact level metadata.
type Metadata interface {
	GroupID() string
	ArtifactID() string
	Version() string
	// Type is the file name of the metadata, e.g. maven-metadata.xml
	Type() string
	Nature() Nature
}

// MergeableMetadata is metadata which must be combined with what is already published remotely.
type MergeableMetadata interface {
	Metadata

	// Merge reads the current remote content from current, if it exists, combines it with
	// the pending content of this metadata and writes the outcome to result.
	Merge(current, result string) error

	// IsMerged is true once Merge has completed successfully
	IsMerged() bool
}

// AsMergeable tells if a metadata requires merging before upload
func AsMergeable(m Metadata) (MergeableMetadata, bool) {
	mm, ok := m.(MergeableMetadata)
	return mm, ok
}

// DefaultMetadata is a plain, non-mergeable metadata coordinate
type DefaultMetadata struct {
	groupID    string
	artifactID string
	version    string
	typ        string
	nature     Nature
}

// NewMetadata builds a plain metadata coordinate
func NewMetadata(groupID, artifactID, version, typ string, nature Nature) DefaultMetadata {
	return DefaultMetadata{
		groupID:    groupID,
		artifactID: artifactID,
		version:    version,
		typ:        typ,
		nature:     nature,
	}
}

// GroupID of the metadata, if any
func (m DefaultMetadata) GroupID() string { return m.groupID }

// ArtifactID of the metadata, if any
func (m DefaultMetadata) ArtifactID() string { return m.artifactID }

// Version of the metadata, if any
func (m DefaultMetadata) Version() string { return m.version }

// Type of the metadata
func (m DefaultMetadata) Type() string { return m.typ }

// Nature of the metadata
func (m DefaultMetadata) Nature() Nature { return m.nature }

func (m DefaultMetadata) String() string {
	return MetadataString(m)
}

// MetadataString renders metadata coordinates as group:artifact:version/type (nature)
func MetadataString(m Metadata) string {
	return m.GroupID() + ":" + m.ArtifactID() + ":" + m.Version() + "/" + m.Type() + " (" + m.Nature().String() + ")"
}
