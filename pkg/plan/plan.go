// Package plan implements the ArchivePlanner: it compares an origin and a
// destination directory tree and emits the ordered list of core.Entry values
// needed to transform a copy of the origin into the destination.
package plan

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jpenney/pdar/pkg/core"
	"github.com/jpenney/pdar/pkg/delta"
	"github.com/jpenney/pdar/pkg/hashing"
	"github.com/jpenney/pdar/pkg/logging"
	"github.com/jpenney/pdar/pkg/pdarerrors"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// Planner implements the diff-planner algorithm described by §4.2: it
// enumerates two trees, classifies every differing path into one of the five
// core.Kind operations, and emits them in the Copy, Move, Diff, Delete, New
// group order.
type Planner struct {
	// Hashing is the content-digest engine used to fingerprint files.
	Hashing *hashing.Engine
	// Delta is the binary-delta capability used to compute Diff payloads.
	Delta delta.BinaryDeltaCodec
	// Patterns restricts the scan to regular file leaves whose base name
	// matches at least one glob pattern. An empty slice is treated as ["*"]
	// (match everything).
	Patterns []string
	// CaseFold matches origin and destination targets case-insensitively,
	// for trees scanned from a case-insensitive host filesystem (the
	// default on macOS and Windows). Targets that only differ by case are
	// treated as the same path rather than as a delete-and-new pair.
	CaseFold bool
	// Logger receives diagnostic output during planning.
	Logger *logging.Logger
}

// foldKey returns the key used to compare target identity between trees:
// the target itself, or its case-folded form when CaseFold is set.
func (p *Planner) foldKey(target string) string {
	if !p.CaseFold {
		return target
	}
	return core.FoldTarget(target)
}

// scanned holds one tree leaf's data, read whole for hashing and
// byte-comparison purposes per the "memory policy" design note.
type scanned struct {
	target string
	data   []byte
	digest string
}

// Plan compares originRoot and destRoot and returns the ordered list of
// entries needed to turn a copy of originRoot into destRoot.
func (p *Planner) Plan(originRoot, destRoot string) ([]*core.Entry, error) {
	patterns := p.Patterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}

	origin, err := p.scanTree(originRoot, patterns)
	if err != nil {
		return nil, errors.Wrap(err, "unable to scan origin tree")
	}
	destination, err := p.scanTree(destRoot, patterns)
	if err != nil {
		return nil, errors.Wrap(err, "unable to scan destination tree")
	}

	// Sorted target lists give us a deterministic (if otherwise arbitrary)
	// iteration order over O, as required for reproducible archives.
	originTargets := sortedKeys(origin)
	destinationTargets := sortedKeys(destination)

	// destByFold maps a fold key back to the destination tree's actual
	// spelling of that target, needed when CaseFold lets two differently
	// cased paths bind to the same identity.
	destByFold := make(map[string]string, len(destinationTargets))
	for _, t := range destinationTargets {
		destByFold[p.foldKey(t)] = t
	}

	inOrigin := make(map[string]bool, len(originTargets))
	for _, t := range originTargets {
		inOrigin[p.foldKey(t)] = true
	}
	inDestination := make(map[string]bool, len(destinationTargets))
	for _, t := range destinationTargets {
		inDestination[p.foldKey(t)] = true
	}

	var common, originOnly, destinationOnly []string
	for _, t := range originTargets {
		if inDestination[p.foldKey(t)] {
			common = append(common, t)
		} else {
			originOnly = append(originOnly, t)
		}
	}
	for _, t := range destinationTargets {
		if !inOrigin[p.foldKey(t)] {
			destinationOnly = append(destinationOnly, t)
		}
	}

	// Index origin targets by digest for content-match binding.
	originByDigest := make(map[string][]string, len(originTargets))
	for _, t := range originTargets {
		d := origin[t].digest
		originByDigest[d] = append(originByDigest[d], t)
	}

	// Step 3: for each destination-only target, bind it to the first
	// matching origin source (by content digest). sourceToTargets preserves
	// binding insertion order, which is what the "last bound target"
	// tie-break in step 4 requires.
	sourceToTargets := make(map[string][]string)
	var newTargets []string
	boundSource := make(map[string]string, len(destinationOnly))
	for _, t := range destinationOnly {
		candidates := originByDigest[destination[t].digest]
		if len(candidates) == 0 {
			newTargets = append(newTargets, t)
			continue
		}
		source := candidates[0]
		sourceToTargets[source] = append(sourceToTargets[source], t)
		boundSource[t] = source
	}

	// Step 4: classify each attracted source's bound targets as Copy or
	// Move.
	moveSources := make(map[string]bool)
	kindForTarget := make(map[string]core.Kind)
	sourceForTarget := make(map[string]string)
	for source, targets := range sourceToTargets {
		if inOrigin[p.foldKey(source)] && inDestination[p.foldKey(source)] {
			// Source survives in the destination tree: every attracted
			// target is a Copy.
			for _, t := range targets {
				kindForTarget[t] = core.KindCopy
				sourceForTarget[t] = source
			}
			continue
		}
		// Source is absent from the destination tree: the last-bound target
		// becomes a Move, the rest remain Copy.
		last := targets[len(targets)-1]
		for _, t := range targets[:len(targets)-1] {
			kindForTarget[t] = core.KindCopy
			sourceForTarget[t] = source
		}
		kindForTarget[last] = core.KindMove
		sourceForTarget[last] = source
		moveSources[source] = true
	}

	// Step 5: origin-only targets not selected as a move source become
	// Delete.
	var deleteTargets []string
	for _, t := range originOnly {
		if !moveSources[t] {
			deleteTargets = append(deleteTargets, t)
		}
	}

	// Step 6: diff common targets with differing content. destTargetFor
	// resolves a common target (spelled as it appears in origin) to its
	// destination-side spelling, which only differs under CaseFold.
	destTargetFor := make(map[string]string, len(common))
	var diffTargets []string
	for _, t := range common {
		dt := destByFold[p.foldKey(t)]
		destTargetFor[t] = dt
		if origin[t].digest != destination[dt].digest {
			diffTargets = append(diffTargets, t)
		}
	}

	var entries []*core.Entry

	// Emission order: Copy, Move, Diff, Delete, New.
	var copyTargets, moveTargets []string
	for t, kind := range kindForTarget {
		if kind == core.KindCopy {
			copyTargets = append(copyTargets, t)
		} else {
			moveTargets = append(moveTargets, t)
		}
	}
	sort.Slice(copyTargets, func(i, j int) bool { return core.TargetLess(copyTargets[i], copyTargets[j]) })
	sort.Slice(moveTargets, func(i, j int) bool { return core.TargetLess(moveTargets[i], moveTargets[j]) })

	emptyDigest := p.Hashing.EmptyDigest()

	for _, t := range copyTargets {
		source := sourceForTarget[t]
		entries = append(entries, &core.Entry{
			Kind:         core.KindCopy,
			Target:       t,
			TargetSource: source,
			OrigDigest:   emptyDigest,
			DestDigest:   origin[source].digest,
			Mode:         core.DefaultMode(),
		})
	}
	for _, t := range moveTargets {
		source := sourceForTarget[t]
		entries = append(entries, &core.Entry{
			Kind:         core.KindMove,
			Target:       t,
			TargetSource: source,
			OrigDigest:   emptyDigest,
			DestDigest:   origin[source].digest,
			Mode:         core.DefaultMode(),
		})
	}

	sort.Slice(diffTargets, func(i, j int) bool { return core.TargetLess(diffTargets[i], diffTargets[j]) })
	for _, t := range diffTargets {
		dt := destTargetFor[t]
		payload, err := p.Delta.Diff(origin[t].data, destination[dt].data)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to compute binary delta for %q", t)
		}
		entries = append(entries, &core.Entry{
			Kind:       core.KindDiff,
			Target:     dt,
			OrigDigest: origin[t].digest,
			DestDigest: destination[dt].digest,
			Mode:       core.DefaultMode(),
			Payload:    payload,
		})
	}

	sort.Slice(deleteTargets, func(i, j int) bool { return core.TargetLess(deleteTargets[i], deleteTargets[j]) })
	for _, t := range deleteTargets {
		entries = append(entries, &core.Entry{
			Kind:       core.KindDelete,
			Target:     t,
			OrigDigest: origin[t].digest,
		})
	}

	sort.Slice(newTargets, func(i, j int) bool { return core.TargetLess(newTargets[i], newTargets[j]) })
	for _, t := range newTargets {
		entries = append(entries, &core.Entry{
			Kind:       core.KindNew,
			Target:     t,
			OrigDigest: emptyDigest,
			DestDigest: destination[t].digest,
			Mode:       core.DefaultMode(),
			Payload:    destination[t].data,
		})
	}

	p.Logger.Infof("planned %d entries (%d copy, %d move, %d diff, %d delete, %d new)",
		len(entries), len(copyTargets), len(moveTargets), len(diffTargets), len(deleteTargets), len(newTargets))

	return entries, nil
}

// scanTree walks root and returns every regular-file leaf whose base name
// matches one of patterns, keyed by its forward-slash-normalized relative
// target path, with its content loaded whole (per the memory policy) and
// hashed.
func (p *Planner) scanTree(root string, patterns []string) (map[string]scanned, error) {
	result := make(map[string]scanned)

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to stat tree root "+root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("tree root is not a directory: %s", root)
	}

	err = godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, dirent *godirwalk.Dirent) error {
			if path == root {
				return nil
			}
			isRegular, err := dirent.IsRegular()
			if err != nil {
				return err
			}
			if !isRegular {
				return nil
			}

			base := filepath.Base(path)
			matched := false
			for _, pattern := range patterns {
				if ok, _ := doublestar.Match(pattern, base); ok {
					matched = true
					break
				}
			}
			if !matched {
				return nil
			}

			relative, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			target := core.NormalizeTarget(relative)

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			result[target] = scanned{
				target: target,
				data:   data,
				digest: p.Hashing.HashBytes(data),
			}
			return nil
		},
	})
	if err != nil {
		return nil, pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to walk tree")
	}

	return result, nil
}

func sortedKeys(m map[string]scanned) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return core.TargetLess(keys[i], keys[j]) })
	return keys
}
