package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/vk/corpusmill/internal/app"
	"github.com/vk/corpusmill/internal/profile"
)

func buildCommand() *cobra.Command {
	var cfg app.Config

	cmd := &cobra.Command{
		Use:   "build [target|goal ...]",
		Short: "Plan and run the build for targets or goals",
		Long: `Build resolves each argument against the recipe registry, plans the full
dependency graph and runs it. Arguments may be concrete targets such as
freqs/en.txt or goal names (freqs, wordfreq, embeddings, all). With no
arguments the all goal is built.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Targets = args
			cfg.LogLevel, cfg.LogFormat = logFlags(cmd)

			a, err := app.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, profile.NewHCLLoader())
			if err != nil {
				return usageErr(err)
			}
			if err := a.Run(cmd.Context()); err != nil {
				var buildErr *app.BuildFailedError
				if errors.As(err, &buildErr) {
					return jobErr(err)
				}
				return usageErr(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.ProfilePath, "profile", "", "HCL profile file")
	cmd.Flags().StringVar(&cfg.DataRoot, "data-root", "", "directory the data tree lives under")
	cmd.Flags().StringVar(&cfg.Mode, "mode", "", "source table mode: full or test")
	cmd.Flags().IntVarP(&cfg.Workers, "workers", "j", 0, "concurrent jobs, 0 means one per CPU")
	cmd.Flags().BoolVar(&cfg.Force, "force", false, "rebuild even when outputs are fresh")
	cmd.Flags().BoolVar(&cfg.DryRun, "dry-run", false, "print the planned jobs without running them")
	cmd.Flags().StringVar(&cfg.ReportPath, "report", "", "write the build result as JSON to this file")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address during the build")

	return cmd
}
