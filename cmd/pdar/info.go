package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jpenney/pdar/pkg/codec"
	"github.com/jpenney/pdar/pkg/pdarerrors"
)

// infoEntrySummary is the YAML/display projection of one core.Entry. Only
// TargetSource is included conditionally: it's meaningless for kinds other
// than copy/move, matching the wire format's own "present only for copy and
// move" convention (spec.md §4.3).
type infoEntrySummary struct {
	Kind         string `yaml:"kind"`
	Target       string `yaml:"target"`
	TargetSource string `yaml:"target_source,omitempty"`
	PayloadBytes int    `yaml:"payload_bytes"`
}

type infoSummary struct {
	FormatVersion string             `yaml:"format_version"`
	CreatedUTC    string             `yaml:"created_utc"`
	HashAlgorithm string             `yaml:"hash_algorithm"`
	Entries       []infoEntrySummary `yaml:"entries"`
}

func infoMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return pdarerrors.New(pdarerrors.KindInvalidParameter, "info requires an archive path")
	}

	file, err := os.Open(arguments[0])
	if err != nil {
		return pdarerrors.Wrap(pdarerrors.KindIO, err, "unable to open archive")
	}
	defer file.Close()

	archive, err := codec.Read(file)
	if err != nil {
		return err
	}

	summary := infoSummary{
		FormatVersion: archive.Header.FormatVersion,
		CreatedUTC:    archive.Header.CreatedUTC.Format("2006-01-02T15:04:05.000000Z"),
		HashAlgorithm: string(archive.Header.HashAlgorithm),
	}
	for _, entry := range archive.Entries {
		summary.Entries = append(summary.Entries, infoEntrySummary{
			Kind:         entry.Kind.String(),
			Target:       entry.Target,
			TargetSource: entry.TargetSource,
			PayloadBytes: len(entry.Payload),
		})
	}

	switch infoConfiguration.format {
	case "yaml":
		return printInfoYAML(summary)
	case "text", "":
		printInfoText(summary)
		return nil
	default:
		return pdarerrors.New(pdarerrors.KindInvalidParameter, "unknown --format: "+infoConfiguration.format)
	}
}

func printInfoYAML(summary infoSummary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return pdarerrors.Wrap(pdarerrors.KindInternal, err, "unable to marshal archive info")
	}
	_, err = os.Stdout.Write(data)
	return err
}

func printInfoText(summary infoSummary) {
	fmt.Printf("format_version: %s\n", summary.FormatVersion)
	fmt.Printf("created_utc:    %s\n", summary.CreatedUTC)
	fmt.Printf("hash_algorithm: %s\n", summary.HashAlgorithm)
	fmt.Printf("entries:        %d\n\n", len(summary.Entries))

	for _, entry := range summary.Entries {
		if entry.TargetSource != "" {
			fmt.Printf("  %-7s %s <- %s (%s)\n", entry.Kind, entry.Target, entry.TargetSource,
				humanize.Bytes(uint64(entry.PayloadBytes)))
		} else {
			fmt.Printf("  %-7s %s (%s)\n", entry.Kind, entry.Target,
				humanize.Bytes(uint64(entry.PayloadBytes)))
		}
	}
}

var infoCommand = &cobra.Command{
	Use:   "info <archive>",
	Short: "Show the header and entry summary of a Portable Delta Archive",
	Args:  cobra.ExactArgs(1),
	Run:   mainify(infoMain),
}

var infoConfiguration struct {
	// format selects the output rendering: "text" (default) or "yaml".
	format string
}

func init() {
	flags := infoCommand.Flags()
	flags.StringVar(&infoConfiguration.format, "format", "text", `Output format: "text" or "yaml"`)
}
