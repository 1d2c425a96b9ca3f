package transfer

import (
	"sync"

	"github.com/oneconcern/depot/pkg/model"
)

// Transfer is one upload or download of an artifact or a metadata file.
//
// The caller owns the transfer: it is built before submission and inspected after the
// batch call returns. The connector has exclusive mutation rights while the call runs.
type Transfer struct {
	kind      Kind
	direction Direction
	artifact  model.Artifact
	metadata  model.Metadata
	file      string
	context   string
	policy    ChecksumPolicy

	mx         sync.Mutex
	state      State
	err        error
	mergedFile string

	// closed when the current execution is over
	done chan struct{}
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// NewArtifactUpload prepares the upload of a local file as an artifact
func NewArtifactUpload(a model.Artifact, file string) *Transfer {
	return &Transfer{kind: ArtifactKind, direction: Upload, artifact: a, file: file}
}

// NewArtifactDownload prepares the download of an artifact to a local file.
//
// An empty file only checks that the artifact exists remotely.
func NewArtifactDownload(a model.Artifact, context, file string, policy ChecksumPolicy) *Transfer {
	return &Transfer{kind: ArtifactKind, direction: Download, artifact: a, context: context, file: file, policy: policy}
}

// NewMetadataUpload prepares the upload of a local file as metadata.
//
// Mergeable metadata is merged with its remote copy before the upload.
func NewMetadataUpload(m model.Metadata, file string) *Transfer {
	return &Transfer{kind: MetadataKind, direction: Upload, metadata: m, file: file}
}

// NewMetadataDownload prepares the download of metadata to a local file.
//
// An empty file only checks that the metadata exists remotely.
func NewMetadataDownload(m model.Metadata, context, file string, policy ChecksumPolicy) *Transfer {
	return &Transfer{kind: MetadataKind, direction: Download, metadata: m, context: context, file: file, policy: policy}
}

// Kind of payload
func (t *Transfer) Kind() Kind { return t.kind }

// Direction of the transfer
func (t *Transfer) Direction() Direction { return t.direction }

// Artifact transferred, for artifact transfers
func (t *Transfer) Artifact() model.Artifact { return t.artifact }

// Metadata transferred, for metadata transfers
func (t *Transfer) Metadata() model.Metadata { return t.metadata }

// File is the local source of an upload or the local destination of a download
func (t *Transfer) File() string { return t.file }

// Context of the resolution requesting a download
func (t *Transfer) Context() string { return t.context }

// ChecksumPolicy of a download
func (t *Transfer) ChecksumPolicy() ChecksumPolicy { return t.policy }

// ExistenceCheck is true for downloads without a local destination
func (t *Transfer) ExistenceCheck() bool {
	return t.direction == Download && t.file == ""
}

// State of the transfer
func (t *Transfer) State() State {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.state
}

// Err is the failure captured by a Failed transfer
func (t *Transfer) Err() error {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.err
}

// Done is closed once the active execution of the transfer ends.
//
// It is closed right away when the transfer is not active.
func (t *Transfer) Done() <-chan struct{} {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.state != Active || t.done == nil {
		return closedDone
	}
	return t.done
}

// MergedFile is the staged result of merging mergeable metadata, if any
func (t *Transfer) MergedFile() string {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.mergedFile
}

func (t *Transfer) String() string {
	var coords string
	if t.kind == MetadataKind {
		if t.metadata != nil {
			coords = model.MetadataString(t.metadata)
		}
	} else {
		coords = t.artifact.String()
	}
	return t.direction.String() + " " + t.kind.String() + " " + coords
}

// The following methods are reserved to connectors.

// Begin activates the transfer at the start of an execution.
//
// A terminal transfer submitted again is re-armed and its previous error cleared.
// Begin returns false if the transfer is already active.
func (t *Transfer) Begin() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.state == Active {
		return false
	}
	t.state = Active
	t.err = nil
	t.done = make(chan struct{})
	return true
}

// Succeed moves an active transfer to Done
func (t *Transfer) Succeed() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.state != Active {
		return false
	}
	t.state = Done
	t.err = nil
	close(t.done)
	return true
}

// Fail moves a non-terminal transfer to Failed, capturing err
func (t *Transfer) Fail(err error) bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.state.Terminal() {
		return false
	}
	if err == nil {
		err = ErrTransfer
	}
	if t.state == Active {
		close(t.done)
	}
	t.state = Failed
	t.err = err
	return true
}

// SetMergedFile records the staged result of a merge
func (t *Transfer) SetMergedFile(path string) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.mergedFile = path
}
