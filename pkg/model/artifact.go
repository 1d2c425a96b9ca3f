// Copyright © 2018 One Concern

package model

import (
	"fmt"
	"regexp"
	"strings"
)

const snapshotSuffix = "-SNAPSHOT"

// timestamped snapshot versions, e.g. 1.0-20110816.141652-3
var snapshotTimestampRe = regexp.MustCompile(`^(.*-)?(\d{8}\.\d{6}-\d+)$`)

// Artifact is the coordinate of a versioned file
type Artifact struct {
	GroupID    string `json:"groupId" yaml:"groupId"`
	ArtifactID string `json:"artifactId" yaml:"artifactId"`
	Version    string `json:"version" yaml:"version"`
	Classifier string `json:"classifier,omitempty" yaml:"classifier,omitempty"`
	Extension  string `json:"extension,omitempty" yaml:"extension,omitempty"`
}

// NewArtifact builds an artifact coordinate. An empty extension defaults to "jar".
func NewArtifact(groupID, artifactID, extension, classifier, version string) Artifact {
	if extension == "" {
		extension = "jar"
	}
	return Artifact{
		GroupID:    groupID,
		ArtifactID: artifactID,
		Version:    version,
		Classifier: classifier,
		Extension:  extension,
	}
}

// ParseArtifact parses coordinates of the form groupId:artifactId[:extension[:classifier]]:version
func ParseArtifact(coords string) (Artifact, error) {
	parts := strings.Split(coords, ":")
	for _, part := range parts {
		if part == "" && len(parts) != 5 {
			return Artifact{}, fmt.Errorf("invalid artifact coordinates %q: empty part", coords)
		}
	}

	switch len(parts) {
	case 3:
		return NewArtifact(parts[0], parts[1], "", "", parts[2]), nil
	case 4:
		return NewArtifact(parts[0], parts[1], parts[2], "", parts[3]), nil
	case 5:
		if parts[0] == "" || parts[1] == "" || parts[4] == "" {
			return Artifact{}, fmt.Errorf("invalid artifact coordinates %q: empty part", coords)
		}
		return NewArtifact(parts[0], parts[1], parts[2], parts[3], parts[4]), nil
	default:
		return Artifact{}, fmt.Errorf("invalid artifact coordinates %q: expected groupId:artifactId[:extension[:classifier]]:version", coords)
	}
}

// IsSnapshot tells if the version is a snapshot, either as a -SNAPSHOT version or a timestamped one
func (a Artifact) IsSnapshot() bool {
	return IsSnapshotVersion(a.Version)
}

// BaseVersion returns the -SNAPSHOT form of a timestamped snapshot version, or the version unchanged
func (a Artifact) BaseVersion() string {
	return BaseVersion(a.Version)
}

func (a Artifact) String() string {
	var b strings.Builder
	b.WriteString(a.GroupID)
	b.WriteByte(':')
	b.WriteString(a.ArtifactID)
	b.WriteByte(':')
	b.WriteString(a.Extension)
	if a.Classifier != "" {
		b.WriteByte(':')
		b.WriteString(a.Classifier)
	}
	b.WriteByte(':')
	b.WriteString(a.Version)
	return b.String()
}

// IsSnapshotVersion tells if a version designates a snapshot
func IsSnapshotVersion(version string) bool {
	return strings.HasSuffix(version, snapshotSuffix) || snapshotTimestampRe.MatchString(version)
}

// BaseVersion maps timestamped snapshots like 1.0-20110816.141652-3 to 1.0-SNAPSHOT
func BaseVersion(version string) string {
	m := snapshotTimestampRe.FindStringSubmatch(version)
	if m == nil {
		return version
	}
	if m[1] == "" {
		return "SNAPSHOT"
	}
	return m[1] + "SNAPSHOT"
}
