package core

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeTarget converts an OS path into a PDAR target: a forward-slash
// normalized, relative path. It does not perform case normalization itself
// (that's a host policy decision left to the caller, since it depends on the
// filesystem the tree was scanned from).
func NormalizeTarget(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

var foldCaser = cases.Fold()

// FoldTarget returns the case-folded form of a normalized target, used to
// compare paths drawn from a case-insensitive host filesystem (the default
// on macOS and Windows) as equivalent regardless of the casing a particular
// tree scan happened to observe.
func FoldTarget(target string) string {
	return foldCaser.String(target)
}

// pathDir is a fast alternative to path.Dir for forward-slash-normalized
// target paths. Unlike path.Dir it returns "" for a top-level path rather
// than ".".
func pathDir(target string) string {
	if target == "" {
		panic("empty path")
	}

	lastSlashIndex := strings.LastIndexByte(target, '/')
	if lastSlashIndex == -1 {
		return ""
	}
	return target[:lastSlashIndex]
}

// TargetLess performs a depth-first-traversal-order comparison between two
// targets, used to give the planner a deterministic (if unspecified)
// iteration order over tree scans: a directory's entries sort together
// before the lexicographic ordering moves on to a sibling directory.
func TargetLess(first, second string) bool {
	if first == second {
		return false
	} else if first == "" {
		return true
	} else if second == "" {
		return false
	}

	for {
		firstSlash := strings.IndexByte(first, '/')
		var firstComponent string
		if firstSlash == -1 {
			firstComponent = first
		} else {
			firstComponent = first[:firstSlash]
		}

		secondSlash := strings.IndexByte(second, '/')
		var secondComponent string
		if secondSlash == -1 {
			secondComponent = second
		} else {
			secondComponent = second[:secondSlash]
		}

		if firstComponent < secondComponent {
			return true
		} else if secondComponent < firstComponent {
			return false
		}

		if firstSlash == -1 {
			return true
		} else if secondSlash == -1 {
			return false
		}
		first = first[firstSlash+1:]
		second = second[secondSlash+1:]
	}
}
