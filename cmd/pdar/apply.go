package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpenney/pdar/pkg/codec"
	"github.com/jpenney/pdar/pkg/delta"
	"github.com/jpenney/pdar/pkg/hashing"
	"github.com/jpenney/pdar/pkg/logging"
	"github.com/jpenney/pdar/pkg/patch"
	"github.com/jpenney/pdar/pkg/pdarerrors"
	"github.com/jpenney/pdar/pkg/pdarfs"
)

func applyMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 2 {
		return pdarerrors.New(pdarerrors.KindInvalidParameter, "apply requires an archive path and a target path")
	}
	archivePath := arguments[0]
	targetPath := arguments[1]

	logger := logging.RootLogger.Sublogger("apply")

	file, err := os.Open(archivePath)
	if err != nil {
		return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to open archive")
	}
	defer file.Close()

	archive, err := codec.Read(file)
	if err != nil {
		return err
	}

	hashEngine, err := hashing.New(archive.Header.HashAlgorithm)
	if err != nil {
		return pdarerrors.Wrap(pdarerrors.KindArchiveFormat, err, "archive uses an unsupported hash algorithm")
	}

	root := targetPath
	if applyConfiguration.outputPath != "" {
		if _, err := os.Stat(applyConfiguration.outputPath); err == nil {
			return pdarerrors.New(pdarerrors.KindInvalidParameter, "output path already exists: "+applyConfiguration.outputPath)
		}
		if err := pdarfs.CopyTree(targetPath, applyConfiguration.outputPath); err != nil {
			return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to seed output path from target path")
		}
		root = applyConfiguration.outputPath
	}

	patcher := patch.NewPatcher(root, hashEngine, &delta.RsyncDeltaCodec{}, logger, nil)

	if err := patcher.Apply(archive); err != nil {
		return err
	}

	fmt.Printf("Applied %d entries to %s\n", len(archive.Entries), root)
	return nil
}

var applyCommand = &cobra.Command{
	Use:   "apply [-o|--output-path P] <archive> <target-path>",
	Short: "Apply a Portable Delta Archive to a directory tree",
	Args:  cobra.ExactArgs(2),
	Run:   mainify(applyMain),
}

var applyConfiguration struct {
	// outputPath, if set, causes the patched tree to be written to a new
	// location instead of modifying target_path in place.
	outputPath string
}

func init() {
	flags := applyCommand.Flags()
	flags.StringVarP(&applyConfiguration.outputPath, "output-path", "o", "", "Write the patched tree to this path instead of modifying the target in place")
}
