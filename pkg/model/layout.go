// Copyright © 2018 One Concern

package model

import (
	"fmt"
	"strings"
)

// Layout maps coordinates to paths relative to the base of a repository
type Layout interface {
	ArtifactPath(Artifact) string
	MetadataPath(Metadata) string
}

// LayoutDefault is the name of the maven2 layout
const LayoutDefault = "default"

// DefaultLayout is the maven2 repository layout:
//
//	group/artifact/baseVersion/artifact-version[-classifier].extension
//	group/artifact/version/type
type DefaultLayout struct{}

// ArtifactPath locates an artifact. Snapshots are stored under their base version.
func (DefaultLayout) ArtifactPath(a Artifact) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(a.GroupID, ".", "/"))
	b.WriteByte('/')
	b.WriteString(a.ArtifactID)
	b.WriteByte('/')
	b.WriteString(a.BaseVersion())
	b.WriteByte('/')
	b.WriteString(a.ArtifactID)
	b.WriteByte('-')
	b.WriteString(a.Version)
	if a.Classifier != "" {
		b.WriteByte('-')
		b.WriteString(a.Classifier)
	}
	if a.Extension != "" {
		b.WriteByte('.')
		b.WriteString(a.Extension)
	}
	return b.String()
}

// MetadataPath locates a metadata file, omitting the empty levels of its coordinate
func (DefaultLayout) MetadataPath(m Metadata) string {
	parts := make([]string, 0, 4)
	if g := m.GroupID(); g != "" {
		parts = append(parts, strings.ReplaceAll(g, ".", "/"))
		if a := m.ArtifactID(); a != "" {
			parts = append(parts, a)
			if v := m.Version(); v != "" {
				parts = append(parts, v)
			}
		}
	}
	parts = append(parts, m.Type())
	return strings.Join(parts, "/")
}

// LayoutByName resolves a layout. An empty name is the default layout.
func LayoutByName(name string) (Layout, error) {
	switch name {
	case "", LayoutDefault:
		return DefaultLayout{}, nil
	default:
		return nil, fmt.Errorf("unsupported repository layout %q", name)
	}
}
