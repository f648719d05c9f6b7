// Package pdarfs provides the small set of filesystem primitives shared by
// the patcher and the CLI: atomic writes and uniquely-named backup files.
// It is adapted from the teacher's pkg/filesystem atomic-write pattern, with
// the directory-handle machinery stripped out since the patcher operates on
// plain paths rather than a race-free directory-descriptor tree.
package pdarfs

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jpenney/pdar/pkg/logging"
	"github.com/jpenney/pdar/pkg/must"
)

// TemporaryNamePrefix is the file name prefix used for every temporary file
// PDAR creates, whether a backup or an intermediate atomic-write file. Using
// a recognizable prefix makes these files easy to spot if cleanup is ever
// interrupted; planner tree scans do not filter on it.
const TemporaryNamePrefix = ".pdar-temporary-"

// atomicWriteTemporaryNamePrefix is the prefix used for intermediate files
// created by WriteFileAtomic.
const atomicWriteTemporaryNamePrefix = TemporaryNamePrefix + "atomic-write-"

// WriteFileAtomic writes data to path using an intermediate temporary file
// that is swapped into place with a rename, so that readers never observe a
// partially-written file at path.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode, logger *logging.Logger) error {
	directory := filepath.Dir(path)

	temporary, err := os.CreateTemp(directory, atomicWriteTemporaryNamePrefix)
	if err != nil {
		return errors.Wrap(err, "unable to create temporary file")
	}

	if _, err := temporary.Write(data); err != nil {
		must.Close(temporary, logger)
		must.OSRemove(temporary.Name(), logger)
		return errors.Wrap(err, "unable to write data to temporary file")
	}

	if err := temporary.Close(); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return errors.Wrap(err, "unable to close temporary file")
	}

	if err := os.Chmod(temporary.Name(), permissions); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return errors.Wrap(err, "unable to set temporary file permissions")
	}

	if err := os.Rename(temporary.Name(), path); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return errors.Wrap(err, "unable to rename temporary file into place")
	}

	return nil
}

// NewBackupPath returns a unique path, inside the OS temporary directory
// (never inside the tree being patched, per the "Shared resource policy" in
// spec.md §5), suitable for use as a rollback backup for target. The target
// path is folded into the name only for diagnostic purposes; uniqueness
// comes from a UUID, so concurrent Patcher.Apply calls over
// unrelated trees never collide.
func NewBackupPath(target string) string {
	name := TemporaryNamePrefix + "backup-" + uuid.NewString() + "-" + filepath.Base(target)
	return filepath.Join(os.TempDir(), name)
}

// CopyFile copies the file at src to dst, preserving dst's own directory
// rather than following any symbolic link semantics (PDAR never touches
// symlinks; see spec.md §1 Non-goals).
func CopyFile(src, dst string, permissions os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrap(err, "unable to read source file")
	}
	if err := os.WriteFile(dst, data, permissions); err != nil {
		return errors.Wrap(err, "unable to write destination file")
	}
	return nil
}

// CopyTree recursively copies the regular files and directories under src
// into dst, creating dst if necessary. It is used by the apply command's
// -o/--output-path flag to seed an alternate target tree from the original
// one before patching it, leaving the original untouched.
func CopyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, relative)

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if err := EnsureParentDirectory(target); err != nil {
			return err
		}
		return CopyFile(path, target, info.Mode().Perm())
	})
}

// EnsureParentDirectory creates the parent directory of path, and any of its
// own missing parents, if it doesn't already exist.
func EnsureParentDirectory(path string) error {
	directory := filepath.Dir(path)
	if directory == "" || directory == "." {
		return nil
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return errors.Wrap(err, "unable to create parent directory")
	}
	return nil
}
