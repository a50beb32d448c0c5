// Package hasher computes content digests for duplicate detection.
//
// Digests are MD5, which is fast and sufficient for finding accidental
// duplicates. Files are read in fixed ChunkSize reads so that memory use does
// not depend on file size.
package hasher

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// ChunkSize is the size of each read fed into the digest
const ChunkSize = 4096

// EmptyDigest is the MD5 of zero bytes. It is also the digest reported for
// files that could not be read.
const EmptyDigest = "d41d8cd98f00b204e9800998ecf8427e"

// ErrNotRegular is returned for directories, devices, sockets and the like
var ErrNotRegular = errors.New("not a regular file")

// Result is the outcome of digesting a single file. When Err is set, Digest
// holds EmptyDigest and the caller chooses whether to keep or drop the file.
type Result struct {
	Path   string
	Digest string
	Err    error
}

// OK reports whether the digest was computed from the file contents
func (r Result) OK() bool {
	return r.Err == nil
}

// Digester computes a Result for a path
type Digester interface {
	Digest(path string) Result
}

// MD5 digests files read from Fs
type MD5 struct {
	Fs afero.Fs
}

// NewMD5 returns an MD5 digester over fs, defaulting to the OS filesystem
func NewMD5(fs afero.Fs) *MD5 {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &MD5{Fs: fs}
}

func (m *MD5) Digest(path string) Result {
	digest, err := m.digest(path)
	if err != nil {
		return Result{Path: path, Digest: EmptyDigest, Err: err}
	}
	return Result{Path: path, Digest: digest}
}

func (m *MD5) digest(path string) (string, error) {
	info, err := m.Fs.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", path, ErrNotRegular)
	}

	f, err := m.Fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return Sum(f)
}

// Sum digests everything readable from r in ChunkSize reads
func Sum(r io.Reader) (string, error) {
	h := md5.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
