package patch

import (
	"github.com/hashicorp/go-multierror"

	"github.com/jpenney/pdar/pkg/core"
)

// ErrorHandler is the strategy object the Patcher delegates failure policy
// to, per spec.md §4.6. Callers may install a custom handler to downgrade
// specific per-entry failures to warnings instead of aborting the whole
// archive.
type ErrorHandler interface {
	// HandleArchive is invoked once an entry-level error has propagated all
	// the way up (HandleEntry returned non-nil). The default implementation
	// restores every file staged in the Patcher's backup map and returns the
	// original error.
	HandleArchive(p *Patcher, err error) error
	// HandleEntry is invoked immediately after a single entry fails to
	// apply. The default implementation re-raises the error unchanged,
	// letting it surface to HandleArchive.
	HandleEntry(p *Patcher, entry *core.Entry, err error) error
}

// DefaultErrorHandler implements the default policy described in spec.md
// §4.6: per-entry errors propagate unchanged, and any archive-level failure
// triggers a full rollback of everything staged so far.
type DefaultErrorHandler struct{}

// HandleEntry implements ErrorHandler.HandleEntry.
func (DefaultErrorHandler) HandleEntry(_ *Patcher, _ *core.Entry, err error) error {
	return err
}

// HandleArchive implements ErrorHandler.HandleArchive.
func (DefaultErrorHandler) HandleArchive(p *Patcher, err error) error {
	rollbackErr := p.rollback()
	p.cleanupBackups()
	if rollbackErr != nil {
		return multierror.Append(err, rollbackErr)
	}
	return err
}
