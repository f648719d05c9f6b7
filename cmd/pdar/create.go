package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jpenney/pdar/cmd"
	"github.com/jpenney/pdar/pkg/codec"
	"github.com/jpenney/pdar/pkg/core"
	"github.com/jpenney/pdar/pkg/delta"
	"github.com/jpenney/pdar/pkg/hashing"
	"github.com/jpenney/pdar/pkg/logging"
	"github.com/jpenney/pdar/pkg/pdarerrors"
	"github.com/jpenney/pdar/pkg/pdarfs"
	"github.com/jpenney/pdar/pkg/plan"
)

func createMain(command *cobra.Command, arguments []string) error {
	if len(arguments) < 3 {
		return pdarerrors.New(pdarerrors.KindInvalidParameter,
			"create requires an archive path, an origin path, and a destination path")
	}
	archivePath := arguments[0]
	originPath := arguments[1]
	destPath := arguments[2]
	patterns := arguments[3:]

	if err := resolveExistingArchive(archivePath); err != nil {
		return err
	}

	logger := logging.RootLogger.Sublogger("create")

	hashEngine, err := hashing.New(hashing.DefaultAlgorithm)
	if err != nil {
		return pdarerrors.Wrap(pdarerrors.KindInternal, err, "unable to construct hash engine")
	}

	planner := &plan.Planner{
		Hashing:  hashEngine,
		Delta:    &delta.RsyncDeltaCodec{},
		Patterns: patterns,
		CaseFold: createConfiguration.caseFold,
		Logger:   logger,
	}

	entries, err := planner.Plan(originPath, destPath)
	if err != nil {
		return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to compute diff plan")
	}

	archive := &core.Archive{
		Header:  core.NewHeader(hashEngine.Algorithm(), time.Now()),
		Entries: entries,
	}

	var buffer bytes.Buffer
	if err := codec.Write(&buffer, archive); err != nil {
		return pdarerrors.Wrap(pdarerrors.KindInternal, err, "unable to encode archive")
	}

	if err := pdarfs.WriteFileAtomic(archivePath, buffer.Bytes(), 0o644, logger); err != nil {
		return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to write archive file")
	}

	printCreateSummary(entries, buffer.Len())
	return nil
}

// resolveExistingArchive implements the -f/--force and -b/--backup
// overwrite policy for an archive path that may already exist.
func resolveExistingArchive(archivePath string) error {
	_, err := os.Stat(archivePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to stat archive path")
	}

	if createConfiguration.backup {
		backupPath := archivePath + ".bak"
		if err := os.Rename(archivePath, backupPath); err != nil {
			return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to back up existing archive")
		}
		return nil
	}

	if createConfiguration.force {
		return nil
	}

	printer := &cmd.StatusLinePrinter{}
	prompter := &cmd.StatusLinePrompter{Printer: printer}
	confirmed, err := prompter.Confirm(fmt.Sprintf("%s already exists; overwrite", archivePath))
	if err != nil {
		return errors.Wrap(err, "unable to prompt for confirmation")
	}
	if !confirmed {
		return pdarerrors.New(pdarerrors.KindInvalidParameter, "refusing to overwrite existing archive without confirmation")
	}
	return nil
}

func printCreateSummary(entries []*core.Entry, archiveSize int) {
	var counts [5]int
	for _, entry := range entries {
		counts[entry.Kind]++
	}
	fmt.Printf("Created archive (%s) with %d entries: %d copy, %d move, %d diff, %d delete, %d new\n",
		humanize.Bytes(uint64(archiveSize)), len(entries),
		counts[core.KindCopy], counts[core.KindMove], counts[core.KindDiff], counts[core.KindDelete], counts[core.KindNew])
}

var createCommand = &cobra.Command{
	Use:   "create [-f|--force] [-b|--backup] <archive> <origin-path> <dest-path> [pattern...]",
	Short: "Create a Portable Delta Archive describing the difference between two trees",
	Args:  cobra.MinimumNArgs(3),
	Run:   mainify(createMain),
}

var createConfiguration struct {
	// force allows overwriting an existing archive file without prompting.
	force bool
	// backup renames an existing archive file to <archive>.bak instead of
	// overwriting it in place.
	backup bool
	// caseFold matches origin and destination paths case-insensitively,
	// for trees scanned from a case-insensitive host filesystem.
	caseFold bool
}

func init() {
	flags := createCommand.Flags()
	flags.BoolVarP(&createConfiguration.force, "force", "f", false, "Overwrite an existing archive without prompting")
	flags.BoolVarP(&createConfiguration.backup, "backup", "b", false, "Back up an existing archive to <archive>.bak instead of overwriting it")
	flags.BoolVar(&createConfiguration.caseFold, "case-fold", false, "Match paths case-insensitively, for trees scanned from a case-insensitive filesystem")
}
