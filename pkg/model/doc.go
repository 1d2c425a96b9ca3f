// Package model describes the coordinates of the objects transferred to and from remote repositories.
//
// The object model is composed of:
//
//	Artifacts:
//	  A single versioned file, e.g. a packaged library, identified by group, artifact id, version,
//	  classifier and extension.
//
//	Metadata:
//	  An auxiliary index file associated with a coordinate, e.g. the list of released versions
//	  of an artifact. Metadata may be mergeable: it must then be combined with the copy already
//	  present remotely rather than blindly overwritten.
//
//	Layouts:
//	  A layout maps artifacts and metadata to paths relative to the base of a repository.
package model
