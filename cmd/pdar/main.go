package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jpenney/pdar/cmd"
	"github.com/jpenney/pdar/pkg/logging"
	"github.com/jpenney/pdar/pkg/version"
)

func rootMain(command *cobra.Command, _ []string) {
	if rootConfiguration.version {
		fmt.Println(version.String())
		return
	}
	_ = command.Help()
}

var rootCommand = &cobra.Command{
	Use:           "pdar",
	Short:         "pdar creates and applies Portable Delta Archives",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run:           rootMain,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		configureLogging()
		return nil
	},
}

var rootConfiguration struct {
	// version indicates that version information should be printed.
	version bool
	// debug increases log verbosity.
	debug bool
	// quiet suppresses all but error-level logging.
	quiet bool
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")
	flags.BoolVarP(&rootConfiguration.debug, "debug", "d", false, "Enable debug logging")
	flags.BoolVarP(&rootConfiguration.quiet, "quiet", "q", false, "Suppress all but error output")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		createCommand,
		applyCommand,
		infoCommand,
		versionCommand,
		generateCommand,
	)
}

// configureLogging applies the global -d/--debug and -q/--quiet flags to the
// root logger, per spec.md §6 "Global flags."
func configureLogging() {
	level := logging.LevelInfo
	switch {
	case rootConfiguration.quiet:
		level = logging.LevelError
	case rootConfiguration.debug:
		level = logging.LevelDebug
	}
	logging.RootLogger.SetLevel(level)
}

// watchForTermination installs a handler for cmd.TerminationSignals so that
// an interrupted create or apply exits promptly rather than hanging; per
// spec.md §5 the core gives no stronger guarantee than best-effort backup
// cleanup under a process-level signal; the Patcher's own backup map (§4.5)
// is what actually protects a tree mid-apply.
func watchForTermination() {
	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, cmd.TerminationSignals...)
	go func() {
		sig := <-signalTermination
		fail(errors.Errorf("terminated by signal: %s", sig))
	}()
}

func main() {
	// Shell completion requests need to reach Cobra's hidden completion
	// commands untouched; skip the mintty relaunch check so it can't
	// interfere with (or swallow the output of) a completion request.
	if !cmd.PerformingShellCompletion {
		cmd.HandleTerminalCompatibility()
	}

	watchForTermination()

	if err := rootCommand.Execute(); err != nil {
		fail(err)
	}
}
