// Package cli is the command surface of corpusmill. It translates flags and
// arguments into app configuration and process exit codes: 1 when a build
// ran and jobs failed, 2 when the invocation itself was wrong.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
)

// ExitError carries the process exit code for main to use.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ExitError) Error() string { return e.Message }

// usageErr wraps a configuration or argument problem as exit code 2.
func usageErr(err error) *ExitError {
	return &ExitError{Code: 2, Message: err.Error()}
}

// jobErr wraps a runtime failure as exit code 1.
func jobErr(err error) *ExitError {
	return &ExitError{Code: 1, Message: err.Error()}
}

// Execute runs the command tree. Any returned error is an *ExitError.
func Execute(ctx context.Context, outW, errW io.Writer, args []string) error {
	root := Root()
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Whatever cobra reports on its own, unknown flags or malformed
	// arguments, is a usage problem.
	return usageErr(err)
}

// Root assembles the corpusmill command tree.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "corpusmill",
		Short: "Build multilingual word frequency data from raw corpora",
		Long: `corpusmill drives a corpus build: it downloads raw sources, tokenizes
and counts them, merges counts into frequency lists and exports the
packed formats downstream consumers read.

The build command plans a job graph from the requested targets or goals
and runs it with freshness skipping. The remaining commands expose the
native pipeline stages as standalone filters over count table files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "text", "log format: text or json")

	root.AddCommand(
		buildCommand(),
		historyCommand(),
		countCommand(),
		mergeCountsCommand(),
		shuffleCommand(),
		freqsCommand(),
		cbpackCommand(),
	)
	return root
}

// logFlags reads the persistent logging flags from any command in the tree.
func logFlags(cmd *cobra.Command) (level, format string) {
	level, _ = cmd.Flags().GetString("log-level")
	format, _ = cmd.Flags().GetString("log-format")
	return level, format
}
