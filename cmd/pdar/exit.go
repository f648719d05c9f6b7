package main

import (
	"os"

	"github.com/jpenney/pdar/cmd"
	"github.com/jpenney/pdar/pkg/pdarerrors"
	"github.com/spf13/cobra"
)

// fail prints err and terminates the process, using exit code 4 for
// Internal-class errors and 1 for everything else, per spec.md §7 "The
// top-level apply surface distinguishes Internal (exit 4) from all others
// (exit 1)."
func fail(err error) {
	cmd.Error(err)
	if pdarerrors.Is(err, pdarerrors.KindInternal) {
		os.Exit(4)
	}
	os.Exit(1)
}

// mainify wraps a Cobra entry point that returns an error, matching
// cmd.Mainify but using fail's exit-code policy instead of cmd.Fatal's
// always-1 policy.
func mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			fail(err)
		}
	}
}
