package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vk/corpusmill/internal/buildlog"
	"github.com/vk/corpusmill/internal/executor"
	"github.com/vk/corpusmill/internal/profile"
)

func historyCommand() *cobra.Command {
	var (
		profilePath string
		dataRoot    string
		runID       string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the outcome of a recorded build run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prof := profile.Default()
			if profilePath != "" {
				var err error
				prof, err = profile.NewHCLLoader().Load(cmd.Context(), profilePath)
				if err != nil {
					return usageErr(err)
				}
			}
			if dataRoot != "" {
				prof.DataRoot = dataRoot
			}

			ledger, err := buildlog.Open(prof.HistoryPath())
			if err != nil {
				return usageErr(err)
			}
			defer ledger.Close()

			var run *buildlog.Run
			if runID != "" {
				run, err = ledger.Get(runID)
			} else {
				run, err = ledger.Latest()
			}
			if err != nil {
				return usageErr(err)
			}

			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}

	cmd.Flags().StringVar(&profilePath, "profile", "", "HCL profile file")
	cmd.Flags().StringVar(&dataRoot, "data-root", "", "directory the data tree lives under")
	cmd.Flags().StringVar(&runID, "run", "", "show this run instead of the latest")

	return cmd
}

func printRun(w io.Writer, run *buildlog.Run) {
	counts := run.Counts()
	fmt.Fprintf(w, "run %s\n", run.ID)
	fmt.Fprintf(w, "started  %s\n", run.Started.Format(time.RFC3339))
	fmt.Fprintf(w, "finished %s (%s)\n",
		run.Finished.Format(time.RFC3339),
		run.Finished.Sub(run.Started).Round(time.Millisecond))
	fmt.Fprintf(w, "jobs     %d succeeded, %d fresh, %d failed, %d skipped\n",
		counts[string(executor.StatusSucceeded)],
		counts[string(executor.StatusSkippedFresh)],
		counts[string(executor.StatusFailed)],
		counts[string(executor.StatusSkippedUpstream)]+counts[string(executor.StatusSkippedAbort)])

	failures := run.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w, "\nfailures:")
	for _, f := range failures {
		fmt.Fprintf(w, "  %s (%s): %s\n", f.Target, f.Rule, f.Error)
		if f.Command != "" {
			fmt.Fprintf(w, "    command: %s\n", f.Command)
		}
	}
}
