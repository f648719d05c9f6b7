// Package core defines the PDAR data model: the Entry tagged union and the
// archive header it travels with. Entries are immutable once constructed;
// the planner builds them, the codec round-trips them, and the patcher only
// ever reads them.
package core

import (
	"fmt"

	"github.com/jpenney/pdar/pkg/delta"
	"github.com/jpenney/pdar/pkg/hashing"
	"github.com/pkg/errors"
)

// Kind identifies one of the five entry operation kinds.
type Kind uint8

const (
	// KindDiff replaces an existing file's content with a binary delta
	// applied to its current bytes.
	KindDiff Kind = iota
	// KindNew creates a file that did not exist in the origin tree.
	KindNew
	// KindDelete removes a file that existed in the origin tree.
	KindDelete
	// KindCopy materializes a new target as a copy of TargetSource, leaving
	// TargetSource in place.
	KindCopy
	// KindMove materializes a new target from TargetSource and removes
	// TargetSource.
	KindMove
)

// String returns the wire-format tag for the kind (pdar_entry_type).
func (k Kind) String() string {
	switch k {
	case KindDiff:
		return "diff"
	case KindNew:
		return "new"
	case KindDelete:
		return "delete"
	case KindCopy:
		return "copy"
	case KindMove:
		return "move"
	default:
		return "unknown"
	}
}

// ParseKind converts a wire-format tag back into a Kind.
func ParseKind(tag string) (Kind, error) {
	switch tag {
	case "diff":
		return KindDiff, nil
	case "new":
		return KindNew, nil
	case "delete":
		return KindDelete, nil
	case "copy":
		return KindCopy, nil
	case "move":
		return KindMove, nil
	default:
		return 0, errors.Errorf("unrecognized entry type: %q", tag)
	}
}

// Entry is the tagged union of the five PDAR operation kinds. All fields are
// populated regardless of Kind; which ones are semantically meaningful
// depends on Kind (see EnsureValid).
type Entry struct {
	// Kind is the operation kind.
	Kind Kind
	// Target is the relative path this entry applies to.
	Target string
	// TargetSource is the relative path this entry's content is copied or
	// moved from. Only meaningful for KindCopy and KindMove.
	TargetSource string
	// OrigDigest is the digest the origin tree's content at Target must
	// match (or the hash engine's empty-sequence sentinel if Target is
	// expected absent).
	OrigDigest string
	// DestDigest is the digest of the final bytes that must exist at Target
	// once this entry is applied. For KindCopy and KindMove, per the wire
	// format (preserved from the original implementation even though it
	// reads oddly), this is the digest of TargetSource's content.
	DestDigest string
	// Mode is the permission bits to apply to the materialized file. Not
	// meaningful for KindDelete.
	Mode Mode
	// Payload is the entry's body: a binary delta for KindDiff, the full
	// destination content for KindNew, and empty for KindDelete, KindCopy,
	// and KindMove.
	Payload []byte
}

// EnsureValid validates the structural invariants of an Entry as constructed
// (not against any live filesystem state, which is the patcher's job).
func (e *Entry) EnsureValid() error {
	if e == nil {
		return errors.New("nil entry")
	}
	if e.Target == "" {
		return errors.New("entry has empty target")
	}
	switch e.Kind {
	case KindDiff:
		if len(e.Payload) == 0 {
			return errors.New("diff entry has empty payload")
		}
	case KindNew:
		// Payload may legitimately be empty (an empty file is a valid
		// destination), so there's nothing further to check here.
	case KindDelete:
		// No additional fields are meaningful.
	case KindCopy, KindMove:
		if e.TargetSource == "" {
			return errors.New("copy/move entry has empty target_source")
		}
		if e.TargetSource == e.Target {
			return errors.New("copy/move entry has target_source equal to target")
		}
	default:
		return errors.Errorf("entry has invalid kind: %d", e.Kind)
	}
	return nil
}

// VerifyOrig reports whether the current state of Target (as observed by the
// patcher) satisfies this entry's precondition.
//
//   - Diff, Delete: true iff the file is present and its digest matches
//     OrigDigest.
//   - New: true iff the file is absent.
//   - Copy, Move: true iff Target is absent. (TargetSource's presence and
//     digest are checked separately via VerifySource, since VerifyOrig only
//     receives Target's state.)
func (e *Entry) VerifyOrig(present bool, digest string) bool {
	switch e.Kind {
	case KindDiff, KindDelete:
		return present && digest == e.OrigDigest
	case KindNew:
		return !present
	case KindCopy, KindMove:
		return !present
	default:
		return false
	}
}

// VerifySource reports whether TargetSource's observed state satisfies the
// precondition for a Copy or Move entry: present, with a digest equal to
// DestDigest (the wire format stores the source's digest there; see Design
// Notes on this).
func (e *Entry) VerifySource(present bool, digest string) bool {
	if e.Kind != KindCopy && e.Kind != KindMove {
		return true
	}
	return present && digest == e.DestDigest
}

// VerifyDest reports whether produced output matches this entry's
// postcondition: digest of producedBytes equals DestDigest, or for Delete,
// that production yielded "absent".
func (e *Entry) VerifyDest(engine *hashing.Engine, produced []byte, producedAbsent bool) bool {
	if e.Kind == KindDelete {
		return producedAbsent
	}
	if producedAbsent {
		return false
	}
	return engine.HashBytes(produced) == e.DestDigest
}

// Produce computes this entry's output bytes.
//
//   - Diff: codec.Apply(current, Payload).
//   - New: Payload.
//   - Delete: no bytes; callers should treat this kind specially rather than
//     calling Produce.
//   - Copy, Move: sourceBytes, the content read from TargetSource.
func (e *Entry) Produce(current []byte, sourceBytes []byte, codec delta.BinaryDeltaCodec) ([]byte, error) {
	switch e.Kind {
	case KindDiff:
		produced, err := codec.Apply(current, e.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply binary delta")
		}
		return produced, nil
	case KindNew:
		return e.Payload, nil
	case KindCopy, KindMove:
		return sourceBytes, nil
	case KindDelete:
		return nil, errors.New("produce called on delete entry")
	default:
		return nil, fmt.Errorf("entry has invalid kind: %d", e.Kind)
	}
}
