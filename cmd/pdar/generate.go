package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpenney/pdar/cmd"
)

// generateMain is the entry point for the generate command.
func generateMain(_ *cobra.Command, _ []string) error {
	if generateConfiguration.bashCompletionScript != "" {
		if err := rootCommand.GenBashCompletionFile(generateConfiguration.bashCompletionScript); err != nil {
			return fmt.Errorf("unable to generate Bash completion script: %w", err)
		}
	}

	if generateConfiguration.zshCompletionScript != "" {
		if err := rootCommand.GenZshCompletionFile(generateConfiguration.zshCompletionScript); err != nil {
			return fmt.Errorf("unable to generate Zsh completion script: %w", err)
		}
	}

	if generateConfiguration.fishCompletionScript != "" {
		if err := rootCommand.GenFishCompletionFile(generateConfiguration.fishCompletionScript, true); err != nil {
			return fmt.Errorf("unable to generate fish completion script: %w", err)
		}
	}

	return nil
}

var generateCommand = &cobra.Command{
	Use:    "generate",
	Short:  "Generate various files",
	Args:   cmd.DisallowArguments,
	Hidden: true,
	Run:    mainify(generateMain),
}

var generateConfiguration struct {
	// bashCompletionScript is the path, if any, at which to generate the
	// Bash completion script.
	bashCompletionScript string
	// zshCompletionScript is the path, if any, at which to generate the Zsh
	// completion script.
	zshCompletionScript string
	// fishCompletionScript is the path, if any, at which to generate the
	// fish completion script.
	fishCompletionScript string
}

func init() {
	flags := generateCommand.Flags()
	flags.StringVar(&generateConfiguration.bashCompletionScript, "bash-completion-script", "", "Specify the Bash completion script output path")
	flags.StringVar(&generateConfiguration.zshCompletionScript, "zsh-completion-script", "", "Specify the Zsh completion script output path")
	flags.StringVar(&generateConfiguration.fishCompletionScript, "fish-completion-script", "", "Specify the fish completion script output path")
}
