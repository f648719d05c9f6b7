// Package hashing provides the content-digest registry used throughout PDAR
// to fingerprint file contents for verification and change detection.
package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Algorithm identifies a supported digest algorithm by name. Archive headers
// store the algorithm name verbatim (pdar_hash_type), so the string form is
// the canonical representation, not an enum ordinal.
type Algorithm string

// Supported algorithms, matching the published registry.
const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	MD5    Algorithm = "md5"

	// DefaultAlgorithm is used when an archive does not override it.
	DefaultAlgorithm = SHA1
)

// ErrUnknownHashAlgorithm is returned when an algorithm name isn't in the
// registry.
var ErrUnknownHashAlgorithm = errors.New("unknown hash algorithm")

// factory returns a constructor for the algorithm's hash.Hash, or false if
// the algorithm isn't recognized.
func (a Algorithm) factory() (func() hash.Hash, bool) {
	switch a {
	case SHA1:
		return sha1.New, true
	case SHA256:
		return sha256.New, true
	case SHA512:
		return sha512.New, true
	case MD5:
		return md5.New, true
	default:
		return nil, false
	}
}

// Valid indicates whether the algorithm name is recognized.
func (a Algorithm) Valid() bool {
	_, ok := a.factory()
	return ok
}

// Engine is a handle bound to a specific digest algorithm, obtained via New.
// It mirrors the "new(algorithm_name) -> handle" interface: a lightweight
// value that can hash any number of byte buffers or files.
type Engine struct {
	algorithm Algorithm
	factory   func() hash.Hash
}

// New creates a hashing engine for the named algorithm. It fails with
// ErrUnknownHashAlgorithm if the name isn't registered.
func New(algorithm Algorithm) (*Engine, error) {
	factory, ok := algorithm.factory()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHashAlgorithm, "%q", string(algorithm))
	}
	return &Engine{algorithm: algorithm, factory: factory}, nil
}

// Algorithm returns the algorithm this engine was constructed with.
func (e *Engine) Algorithm() Algorithm {
	return e.algorithm
}

// HashBytes computes the lowercase hex digest of a byte buffer.
func (e *Engine) HashBytes(data []byte) string {
	h := e.factory()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashFile computes the lowercase hex digest of a file's contents, streaming
// it through the hash rather than loading it into memory twice.
func (e *Engine) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "unable to open file for hashing")
	}
	defer f.Close()

	h := e.factory()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "unable to read file for hashing")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EmptyDigest returns the reserved digest of the empty byte sequence under
// this engine's algorithm, used as the sentinel for "absent" digest fields.
func (e *Engine) EmptyDigest() string {
	return e.HashBytes(nil)
}
