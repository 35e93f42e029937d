package buildlog

import (
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/vk/corpusmill/internal/executor"
)

var json = jsoniter.ConfigFastest

// Record is the persisted outcome of one job.
type Record struct {
	Target          string    `json:"target"`
	Rule            string    `json:"rule"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	Command         string    `json:"command,omitempty"`
	Started         time.Time `json:"started"`
	DurationSeconds float64   `json:"durationSeconds"`
	Executed        bool      `json:"executed"`
}

// Run is one recorded build.
type Run struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Jobs     []Record  `json:"jobs"`
}

// Counts tallies job records by status.
func (r *Run) Counts() map[string]int {
	out := make(map[string]int)
	for _, j := range r.Jobs {
		out[j.Status]++
	}
	return out
}

// Failures returns the records of failed jobs.
func (r *Run) Failures() []Record {
	var out []Record
	for _, j := range r.Jobs {
		if j.Status == string(executor.StatusFailed) {
			out = append(out, j)
		}
	}
	return out
}

// FromBuildResult flattens an executor result into its persisted form.
func FromBuildResult(res *executor.BuildResult) *Run {
	run := &Run{ID: res.RunID, Started: res.Started, Finished: res.Finished}
	for _, j := range res.Jobs {
		rec := Record{
			Target:          j.Target,
			Rule:            j.Rule,
			Status:          string(j.Status),
			Command:         j.Command,
			Started:         j.Started,
			DurationSeconds: j.Duration.Seconds(),
			Executed:        j.Executed,
		}
		if j.Err != nil {
			rec.Error = j.Err.Error()
		}
		run.Jobs = append(run.Jobs, rec)
	}
	return run
}

// WriteReport writes the run as indented JSON.
func WriteReport(w io.Writer, run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
