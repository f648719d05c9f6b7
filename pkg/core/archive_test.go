package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jpenney/pdar/pkg/hashing"
)

func TestNewHeaderNormalizesToUTC(t *testing.T) {
	location, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	local := time.Date(2026, 1, 2, 3, 4, 5, 0, location)

	header := NewHeader(hashing.SHA1, local)
	require.Equal(t, FormatVersion, header.FormatVersion)
	require.Equal(t, time.UTC, header.CreatedUTC.Location())
	require.True(t, header.CreatedUTC.Equal(local))
}

func TestHeaderEnsureValid(t *testing.T) {
	header := NewHeader(hashing.SHA1, time.Now())
	require.NoError(t, header.EnsureValid())

	empty := header
	empty.FormatVersion = ""
	require.Error(t, empty.EnsureValid())

	malformed := header
	malformed.FormatVersion = "not-a-version"
	require.Error(t, malformed.EnsureValid())

	wrongMajor := header
	wrongMajor.FormatVersion = "2.0.0"
	require.Error(t, wrongMajor.EnsureValid())

	badAlgorithm := header
	badAlgorithm.HashAlgorithm = hashing.Algorithm("rot13")
	require.Error(t, badAlgorithm.EnsureValid())
}

func TestArchiveEnsureValid(t *testing.T) {
	header := NewHeader(hashing.SHA1, time.Now())

	archive := &Archive{
		Header: header,
		Entries: []*Entry{
			{Kind: KindNew, Target: "a"},
			{Kind: KindNew, Target: "b"},
		},
	}
	require.NoError(t, archive.EnsureValid())

	duplicate := &Archive{
		Header: header,
		Entries: []*Entry{
			{Kind: KindNew, Target: "a"},
			{Kind: KindDelete, Target: "a"},
		},
	}
	require.Error(t, duplicate.EnsureValid(), "duplicate targets should be rejected")

	invalidEntry := &Archive{
		Header:  header,
		Entries: []*Entry{{Kind: KindDiff, Target: "a"}},
	}
	require.Error(t, invalidEntry.EnsureValid(), "diff entry missing payload should be rejected")

	invalidHeader := &Archive{Header: Header{}}
	require.Error(t, invalidHeader.EnsureValid())
}
