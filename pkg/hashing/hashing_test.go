package hashing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUnknownAlgorithm(t *testing.T) {
	_, err := New(Algorithm("asdf"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnknownHashAlgorithm)
}

func TestNewKnownAlgorithms(t *testing.T) {
	for _, algorithm := range []Algorithm{SHA1, SHA256, SHA512, MD5} {
		engine, err := New(algorithm)
		require.NoError(t, err)
		require.Equal(t, algorithm, engine.Algorithm())
	}
}

func TestHashBytesSHA1KnownVector(t *testing.T) {
	engine, err := New(SHA1)
	require.NoError(t, err)

	// echo -n "x" | sha1sum
	require.Equal(t, "11f6ad8ec52a2984abaafd7c3b516503785c2072", engine.HashBytes([]byte("x")))
}

func TestHashBytesEmptyMatchesEmptyDigest(t *testing.T) {
	engine, err := New(SHA256)
	require.NoError(t, err)

	require.Equal(t, engine.HashBytes(nil), engine.EmptyDigest())
}

func TestHashFileMatchesHashBytes(t *testing.T) {
	engine, err := New(SHA256)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	fromFile, err := engine.HashFile(path)
	require.NoError(t, err)

	require.Equal(t, engine.HashBytes([]byte("hello world")), fromFile)
}

func TestHashFileMissing(t *testing.T) {
	engine, err := New(SHA1)
	require.NoError(t, err)

	_, err = engine.HashFile(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}
