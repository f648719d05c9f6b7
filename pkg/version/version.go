// Package version carries PDAR's own build/version metadata, independent of
// core.FormatVersion (which is the on-disk archive format's version). It is
// grounded in the teacher's pkg/mutagen/version.go convention of a single
// semver string stamped at build time.
package version

import "fmt"

// Semantic version components for the pdar binary itself.
const (
	Major = 1
	Minor = 0
	Patch = 0
)

// Tag is an optional prerelease/build tag, empty for a release build.
var Tag = ""

// String returns the full version string, e.g. "1.0.0" or "1.0.0-dev".
func String() string {
	base := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
	if Tag == "" {
		return base
	}
	return base + "-" + Tag
}
