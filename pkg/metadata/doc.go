// Package metadata implements mergeable maven-metadata.xml files.
//
// Versions indexes the versions of an artifact (group/artifact/maven-metadata.xml),
// Snapshot indexes the timestamped builds of a snapshot version (group/artifact/version/maven-metadata.xml).
// Both merge their pending content with the copy already published remotely.
package metadata
