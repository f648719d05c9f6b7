package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpenney/pdar/cmd"
	"github.com/jpenney/pdar/pkg/version"
)

func versionMain(command *cobra.Command, _ []string) error {
	fmt.Println(version.String())
	return nil
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cmd.DisallowArguments,
	// version can never produce a KindInternal error, so the generic
	// cmd.Mainify (always exit 1 on failure) already matches spec.md §7's
	// exit-code policy here; the Internal-vs-other distinction in exit.go's
	// mainify is only needed for create/apply/info.
	Run: cmd.Mainify(versionMain),
}
