// Package checksum computes the digests published beside every remote object,
// as sidecar files named after the object with the algorithm extension appended
// (e.g. "a-1.jar.sha1").
package checksum

import (
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"encoding/hex"
	"hash"
	"io"
	"strings"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/oneconcern/depot/pkg/errors"
)

// ErrUnknownAlgorithm is returned when looking up an unsupported algorithm
var ErrUnknownAlgorithm = errors.New("unknown checksum algorithm")

// Algorithm describes a digest and the extension of its sidecar file
type Algorithm struct {
	Name      string
	Extension string
	New       func() hash.Hash
}

// Sidecar returns the key of the checksum file for an object
func (a Algorithm) Sidecar(key string) string {
	return key + "." + a.Extension
}

func (a Algorithm) String() string {
	return a.Name
}

var (
	// SHA1 is the primary maven checksum
	SHA1 = Algorithm{Name: "SHA-1", Extension: "sha1", New: sha1.New}

	// MD5 is the legacy maven checksum
	MD5 = Algorithm{Name: "MD5", Extension: "md5", New: md5.New}

	// BLAKE2b produces 512 bits digests
	BLAKE2b = Algorithm{Name: "BLAKE2b", Extension: "blake2b", New: blake2b.New512}

	known = []Algorithm{SHA1, MD5, BLAKE2b}
)

// Defaults are the algorithms used when none are configured, in order of preference
func Defaults() []Algorithm {
	return []Algorithm{SHA1, MD5}
}

// ByName resolves an algorithm from its name or its extension, ignoring case
func ByName(name string) (Algorithm, error) {
	for _, alg := range known {
		if strings.EqualFold(alg.Name, name) || strings.EqualFold(alg.Extension, name) {
			return alg, nil
		}
	}
	return Algorithm{}, ErrUnknownAlgorithm.Wrapf("%q", name)
}

// Parse resolves a list of algorithm names
func Parse(names []string) ([]Algorithm, error) {
	if len(names) == 0 {
		return Defaults(), nil
	}
	algs := make([]Algorithm, 0, len(names))
	for _, name := range names {
		alg, err := ByName(name)
		if err != nil {
			return nil, err
		}
		algs = append(algs, alg)
	}
	return algs, nil
}

// Digester computes several digests over the same stream of bytes
type Digester struct {
	algs   []Algorithm
	hashes []hash.Hash
	w      io.Writer
}

// NewDigester builds a writer feeding all the given algorithms
func NewDigester(algs []Algorithm) *Digester {
	d := &Digester{
		algs:   algs,
		hashes: make([]hash.Hash, len(algs)),
	}
	writers := make([]io.Writer, len(algs))
	for i, alg := range algs {
		d.hashes[i] = alg.New()
		writers[i] = d.hashes[i]
	}
	d.w = io.MultiWriter(writers...)
	return d
}

func (d *Digester) Write(p []byte) (int, error) {
	return d.w.Write(p)
}

// Sums returns the hex encoded digests, by algorithm extension
func (d *Digester) Sums() map[string]string {
	sums := make(map[string]string, len(d.algs))
	for i, alg := range d.algs {
		sums[alg.Extension] = hex.EncodeToString(d.hashes[i].Sum(nil))
	}
	return sums
}

// Compute digests a whole stream
func Compute(r io.Reader, algs ...Algorithm) (map[string]string, error) {
	d := NewDigester(algs)
	if _, err := io.Copy(d, r); err != nil {
		return nil, err
	}
	return d.Sums(), nil
}

// ParseSidecar extracts the digest from the content of a checksum file.
//
// Checksum files may carry the file name after the digest, as produced by sha1sum & co.
func ParseSidecar(content []byte) string {
	fields := strings.Fields(string(content))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
