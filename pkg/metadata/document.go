package metadata

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"

	"github.com/oneconcern/depot/pkg/errors"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
)

// FileName of maven metadata
const FileName = "maven-metadata.xml"

const (
	lastUpdatedFormat = "20060102150405"
	timestampFormat   = "20060102.150405"
)

var (
	// ErrCorrupt indicates that the current metadata cannot be read
	ErrCorrupt = errors.New("corrupt metadata")

	// ErrAlreadyMerged is returned when merging the same metadata twice
	ErrAlreadyMerged = errors.New("metadata already merged")
)

// Document mirrors a maven-metadata.xml file
type Document struct {
	XMLName      xml.Name    `xml:"metadata"`
	ModelVersion string      `xml:"modelVersion,attr,omitempty"`
	GroupID      string      `xml:"groupId,omitempty"`
	ArtifactID   string      `xml:"artifactId,omitempty"`
	Version      string      `xml:"version,omitempty"`
	Versioning   *Versioning `xml:"versioning,omitempty"`
}

// Versioning section of the metadata
type Versioning struct {
	Latest           string            `xml:"latest,omitempty"`
	Release          string            `xml:"release,omitempty"`
	Snapshot         *SnapshotInfo     `xml:"snapshot,omitempty"`
	Versions         []string          `xml:"versions>version"`
	LastUpdated      string            `xml:"lastUpdated,omitempty"`
	SnapshotVersions []SnapshotVersion `xml:"snapshotVersions>snapshotVersion"`
}

// SnapshotInfo describes the latest build of a snapshot
type SnapshotInfo struct {
	Timestamp   string `xml:"timestamp,omitempty"`
	BuildNumber int    `xml:"buildNumber,omitempty"`
	LocalCopy   bool   `xml:"localCopy,omitempty"`
}

// SnapshotVersion is the resolved version of one file of a snapshot build
type SnapshotVersion struct {
	Classifier string `xml:"classifier,omitempty"`
	Extension  string `xml:"extension"`
	Value      string `xml:"value"`
	Updated    string `xml:"updated"`
}

func (d *Document) versioning() *Versioning {
	if d.Versioning == nil {
		d.Versioning = &Versioning{}
	}
	return d.Versioning
}

// Decode parses a metadata document. Blank input is an empty document.
func Decode(r io.Reader) (*Document, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc := &Document{}
	if len(bytes.TrimSpace(b)) == 0 {
		return doc, nil
	}
	if err := xml.Unmarshal(b, doc); err != nil {
		return nil, ErrCorrupt.Wrap(err)
	}
	return doc, nil
}

// Encode writes a metadata document, indented
func Encode(w io.Writer, doc *Document) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Read loads a metadata file. A missing file is reported as nil, with no error.
func Read(fs afero.Fs, path string) (*Document, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ErrCorrupt.Wrap(err)
	}
	defer func() {
		_ = f.Close()
	}()

	doc, err := Decode(f)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		return nil, ErrCorrupt.Wrap(err)
	}
	return doc, nil
}

// Write saves a metadata file atomically, by renaming a temporary file written beside it
func Write(fs afero.Fs, path string, doc *Document) (err error) {
	dir := filepath.Dir(path)
	if err = fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"-"+ksuid.New().String())
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = fs.Remove(tmp)
		}
	}()

	if err = Encode(f, doc); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return fs.Rename(tmp, path)
}
