package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/corpusmill/internal/app"
	"github.com/vk/corpusmill/internal/buildlog"
	"github.com/vk/corpusmill/internal/profile"
)

// BuildOutcome is what one harness build produced.
type BuildOutcome struct {
	// Err is the run error, nil on a clean build.
	Err error
	// Logs is everything the build logged, plus any command output.
	Logs string
	// Run is the ledger record of the run, nil when none was written.
	Run *buildlog.Run
}

// RunBuild drives a full build through the app layer and reads the outcome
// back from the history ledger.
func RunBuild(t *testing.T, cfg app.Config) *BuildOutcome {
	t.Helper()
	require.NotEmpty(t, cfg.DataRoot, "harness builds need a data root")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}

	logs := &SafeBuffer{}
	out := &SafeBuffer{}
	a, err := app.New(out, logs, cfg, profile.NewHCLLoader())
	require.NoError(t, err)

	outcome := &BuildOutcome{Err: a.Run(context.Background())}
	outcome.Logs = logs.String() + out.String()

	ledger, err := buildlog.Open(a.Profile().HistoryPath())
	if err == nil {
		if run, lerr := ledger.Latest(); lerr == nil {
			outcome.Run = run
		}
		require.NoError(t, ledger.Close())
	}
	return outcome
}

// StatusOf returns the recorded status for one target in the outcome's run.
func (o *BuildOutcome) StatusOf(t *testing.T, target string) string {
	t.Helper()
	require.NotNil(t, o.Run, "no run was recorded")
	for _, j := range o.Run.Jobs {
		if j.Target == target {
			return j.Status
		}
	}
	t.Fatalf("no job for target %s in run %s", target, o.Run.ID)
	return ""
}
