// Package patch implements the Patcher described by spec.md §4.5-4.6: a
// stateful applier that walks a plan against a live directory tree,
// verifying pre- and postconditions on every entry, staging backups before
// any mutating write, and rolling those backups back if any later entry
// fails. It is grounded in the teacher's change-application pattern for a
// synchronized tree, generalized from "reconcile two in-memory trees" to
// "apply a serialized plan of five operation kinds with transactional
// rollback."
package patch

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpenney/pdar/pkg/core"
	"github.com/jpenney/pdar/pkg/delta"
	"github.com/jpenney/pdar/pkg/hashing"
	"github.com/jpenney/pdar/pkg/logging"
	"github.com/jpenney/pdar/pkg/pdarerrors"
	"github.com/jpenney/pdar/pkg/pdarfs"
)

// backupRecord is one entry in the Patcher's backup map: the transient,
// per-apply staging state described in spec.md §4.5 "Backup map".
type backupRecord struct {
	// path is the location of the staged backup copy. Empty when wasAbsent
	// is true or when referenceOnly is true.
	path string
	// wasAbsent indicates that target did not exist before this apply, so
	// rollback should delete it rather than restore a backup.
	wasAbsent bool
	// mode is the target's original permission bits, restored alongside the
	// backup's content.
	mode os.FileMode
	// referenceOnly marks a Copy/Move target_source whose content this
	// Patcher did not itself modify or back up (spec.md §4.5 step 6: "on
	// rollback it must be restored from its own backup if any" — if some
	// other entry later actually mutates this same path, that entry's real
	// backupRecord overwrites this placeholder).
	referenceOnly bool
}

// Patcher applies an ordered list of core.Entry values to a live directory
// rooted at Root. A single Patcher value may be reused across multiple
// calls to Apply; each call owns its own backup map and unlink list for its
// duration, per spec.md §3 "Lifecycles".
type Patcher struct {
	// Root is the directory the archive is applied against.
	Root string
	// Hashing computes digests to verify pre/postconditions.
	Hashing *hashing.Engine
	// Delta is the binary-delta capability used to produce Diff output.
	Delta delta.BinaryDeltaCodec
	// ErrorHandler is consulted on entry- and archive-level failures.
	// DefaultErrorHandler{} is used if nil.
	ErrorHandler ErrorHandler
	// Logger receives diagnostic output during application.
	Logger *logging.Logger
	// Metrics records per-entry outcomes, if non-nil.
	Metrics *Metrics

	backups map[string]*backupRecord
	unlink  []string
}

// NewPatcher constructs a Patcher with the default error handler and a
// freshly registered metrics set.
func NewPatcher(root string, hashEngine *hashing.Engine, deltaCodec delta.BinaryDeltaCodec, logger *logging.Logger, reg prometheus.Registerer) *Patcher {
	return &Patcher{
		Root:         root,
		Hashing:      hashEngine,
		Delta:        deltaCodec,
		ErrorHandler: DefaultErrorHandler{},
		Logger:       logger,
		Metrics:      NewMetrics(reg),
	}
}

func (p *Patcher) errorHandler() ErrorHandler {
	if p.ErrorHandler != nil {
		return p.ErrorHandler
	}
	return DefaultErrorHandler{}
}

func (p *Patcher) resolve(target string) string {
	return filepath.Join(p.Root, filepath.FromSlash(target))
}

// fileState is the observed state of one path during application: either
// absent, or present with its content and digest.
type fileState struct {
	present bool
	data    []byte
	digest  string
	mode    os.FileMode
}

func (p *Patcher) readState(target string) (fileState, error) {
	path := p.resolve(target)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileState{present: false, digest: p.Hashing.EmptyDigest()}, nil
		}
		return fileState{}, pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to read "+target)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}, pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to stat "+target)
	}
	return fileState{
		present: true,
		data:    data,
		digest:  p.Hashing.HashBytes(data),
		mode:    info.Mode().Perm(),
	}, nil
}

// Apply applies every entry in archive.Entries to the Patcher's Root,
// implementing the per-entry protocol and ordering rules of spec.md §4.5:
// all entries are applied before the deferred-deletion pass runs, so a Copy
// sharing a source with a Move in the same archive can still read it.
func (p *Patcher) Apply(archive *core.Archive) error {
	p.backups = make(map[string]*backupRecord)
	p.unlink = nil

	for _, entry := range archive.Entries {
		if err := p.applyEntry(entry); err != nil {
			if handled := p.errorHandler().HandleEntry(p, entry, err); handled != nil {
				return p.errorHandler().HandleArchive(p, handled)
			}
		}
	}

	for _, target := range p.unlink {
		path := p.resolve(target)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			wrapped := pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to remove "+target)
			return p.errorHandler().HandleArchive(p, wrapped)
		}
	}

	p.cleanupBackups()
	return nil
}

// applyEntry implements the per-entry protocol of spec.md §4.5, steps 1-9.
func (p *Patcher) applyEntry(entry *core.Entry) error {
	targetState, err := p.readState(entry.Target)
	if err != nil {
		return err
	}

	var sourceState fileState
	if entry.Kind == core.KindCopy || entry.Kind == core.KindMove {
		sourceState, err = p.readState(entry.TargetSource)
		if err != nil {
			return err
		}
	}

	origOK := entry.VerifyOrig(targetState.present, targetState.digest)
	if origOK && (entry.Kind == core.KindCopy || entry.Kind == core.KindMove) {
		origOK = entry.VerifySource(sourceState.present, sourceState.digest)
	}

	if !origOK {
		alreadyApplied := entry.VerifyDest(p.Hashing, targetState.data, !targetState.present)
		if alreadyApplied {
			p.Logger.Infof("entry for %q already applied; skipping", entry.Target)
			p.Metrics.observeSkipped()
			return nil
		}
		return pdarerrors.New(pdarerrors.KindSourceFile, "precondition not satisfied for "+entry.Target)
	}

	var produced []byte
	producedAbsent := entry.Kind == core.KindDelete
	if !producedAbsent {
		produced, err = entry.Produce(targetState.data, sourceState.data, p.Delta)
		if err != nil {
			return pdarerrors.Wrap(pdarerrors.KindPatchedFile, err, "unable to produce output for "+entry.Target)
		}
	}

	if !entry.VerifyDest(p.Hashing, produced, producedAbsent) {
		return pdarerrors.New(pdarerrors.KindPatchedFile, "produced output failed postcondition verification for "+entry.Target)
	}

	return p.stageAndWrite(entry, targetState, produced, producedAbsent)
}

// stageAndWrite implements steps 6-9 of spec.md §4.5: back up the current
// state, write the produced output (if any), and defer removals.
func (p *Patcher) stageAndWrite(entry *core.Entry, targetState fileState, produced []byte, producedAbsent bool) (err error) {
	targetPath := p.resolve(entry.Target)

	if err := pdarfs.EnsureParentDirectory(targetPath); err != nil {
		return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to create parent directory for "+entry.Target)
	}

	if err := p.stageBackup(entry.Target, targetState); err != nil {
		return err
	}
	if entry.Kind == core.KindCopy || entry.Kind == core.KindMove {
		if _, exists := p.backups[entry.TargetSource]; !exists {
			p.backups[entry.TargetSource] = &backupRecord{referenceOnly: true}
		}
	}

	defer func() {
		if err != nil {
			if restoreErr := p.restoreOne(entry.Target); restoreErr != nil {
				p.Logger.Warnf("unable to restore %q after failed write: %s", entry.Target, restoreErr)
			}
		}
	}()

	switch entry.Kind {
	case core.KindDelete:
		p.unlink = append(p.unlink, entry.Target)
	case core.KindMove:
		if err := p.writeTarget(targetPath, produced, entry.Mode); err != nil {
			return err
		}
		p.unlink = append(p.unlink, entry.TargetSource)
	default: // Diff, New, Copy
		if err := p.writeTarget(targetPath, produced, entry.Mode); err != nil {
			return err
		}
	}

	p.Metrics.observeApplied(entry.Kind.String())
	return nil
}

// stageBackup records the pre-apply state of target in the backup map
// before any mutating write occurs, per spec.md §5 "any file the patcher
// intends to modify must have a backup... recorded before its first
// mutating write."
func (p *Patcher) stageBackup(target string, state fileState) error {
	if !state.present {
		p.backups[target] = &backupRecord{wasAbsent: true}
		return nil
	}

	backupPath := pdarfs.NewBackupPath(target)
	if err := pdarfs.CopyFile(p.resolve(target), backupPath, 0o600); err != nil {
		return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to back up "+target)
	}
	p.backups[target] = &backupRecord{path: backupPath, mode: state.mode}
	return nil
}

// writeTarget ensures path is writable, writes data to it, and sets mode.
func (p *Patcher) writeTarget(path string, data []byte, mode core.Mode) error {
	if info, err := os.Stat(path); err == nil {
		if err := os.Chmod(path, info.Mode().Perm()|0o600); err != nil {
			return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to make target writable")
		}
	}

	if err := os.WriteFile(path, data, mode.OSMode()); err != nil {
		return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to write target")
	}
	if err := os.Chmod(path, mode.OSMode()); err != nil {
		return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to set target mode")
	}
	return nil
}

// restoreOne restores a single target from its staged backup, used for the
// per-entry rollback described in spec.md §4.5 "On per-entry failure after
// step 7 writes began."
func (p *Patcher) restoreOne(target string) error {
	record, ok := p.backups[target]
	if !ok || record.referenceOnly {
		return nil
	}
	path := p.resolve(target)
	if record.wasAbsent {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "unable to remove newly created file")
		}
		return nil
	}
	if err := pdarfs.CopyFile(record.path, path, record.mode); err != nil {
		return errors.Wrap(err, "unable to restore backup content")
	}
	if err := os.Chmod(path, record.mode); err != nil {
		return errors.Wrap(err, "unable to restore backup mode")
	}
	return nil
}

// rollback restores every file staged in the backup map, per spec.md §4.6
// "handle_archive... default rolls back using patcher.backups."
func (p *Patcher) rollback() error {
	var result error
	for target, record := range p.backups {
		if record.referenceOnly {
			continue
		}
		if err := p.restoreOne(target); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "unable to roll back %q", target))
		}
		p.Metrics.observeRolledBack()
	}
	return result
}

// cleanupBackups deletes every real backup file after a successful Apply.
func (p *Patcher) cleanupBackups() {
	for _, record := range p.backups {
		if record.referenceOnly || record.wasAbsent || record.path == "" {
			continue
		}
		if err := os.Remove(record.path); err != nil && !os.IsNotExist(err) {
			p.Logger.Warnf("unable to remove backup file %q: %s", record.path, err)
		}
	}
	p.backups = nil
	p.unlink = nil
}
