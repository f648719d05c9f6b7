package core

import (
	"time"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"

	"github.com/jpenney/pdar/pkg/hashing"
)

// FormatMajorVersion is the only version this codec implementation
// understands; readers reject any other major version outright.
const FormatMajorVersion = 1

// FormatVersion is the full semantic version string stamped into
// pdar_version. Minor/patch differences are payload-compatible.
const FormatVersion = "1.0.0"

// Header carries the archive-level metadata stored in the PAX headers of the
// first tar member.
type Header struct {
	// FormatVersion is the semantic version string the archive was written
	// with (pdar_version).
	FormatVersion string
	// CreatedUTC is the archive's creation timestamp, in UTC
	// (pdar_created_datetime).
	CreatedUTC time.Time
	// HashAlgorithm names the digest algorithm used for every digest field
	// in the archive (pdar_hash_type).
	HashAlgorithm hashing.Algorithm
}

// NewHeader constructs a Header for an archive being created now, using the
// given hash algorithm.
func NewHeader(algorithm hashing.Algorithm, now time.Time) Header {
	return Header{
		FormatVersion: FormatVersion,
		CreatedUTC:    now.UTC(),
		HashAlgorithm: algorithm,
	}
}

// EnsureValid validates a Header as decoded from an archive.
func (h Header) EnsureValid() error {
	if h.FormatVersion == "" {
		return errors.New("header has empty format version")
	}
	version, err := semver.Parse(h.FormatVersion)
	if err != nil {
		return errors.Wrapf(err, "header has malformed format version: %q", h.FormatVersion)
	}
	if int(version.Major) != FormatMajorVersion {
		return errors.Errorf("header format version %q has major version %d, expected %d",
			h.FormatVersion, version.Major, FormatMajorVersion)
	}
	if !h.HashAlgorithm.Valid() {
		return errors.Errorf("header has unknown hash algorithm: %q", h.HashAlgorithm)
	}
	return nil
}

// Archive is the fully decoded in-memory representation of a PDAR file: the
// header plus the ordered list of entries. Archive values are immutable; the
// planner builds one, the codec round-trips it, and the patcher only reads
// from it.
type Archive struct {
	Header  Header
	Entries []*Entry
}

// EnsureValid validates the archive's invariants: a valid header, every
// entry individually valid, and every target unique.
func (a *Archive) EnsureValid() error {
	if err := a.Header.EnsureValid(); err != nil {
		return errors.Wrap(err, "invalid header")
	}

	seen := make(map[string]bool, len(a.Entries))
	for _, entry := range a.Entries {
		if err := entry.EnsureValid(); err != nil {
			return errors.Wrapf(err, "invalid entry for target %q", entry.Target)
		}
		if seen[entry.Target] {
			return errors.Errorf("duplicate target in archive: %q", entry.Target)
		}
		seen[entry.Target] = true
	}

	return nil
}
