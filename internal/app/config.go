package app

import "github.com/vk/corpusmill/internal/profile"

// Config carries the command-line settings for one invocation. Zero fields
// defer to the profile.
type Config struct {
	// ProfilePath is the HCL profile file. Empty means built-in defaults.
	ProfilePath string
	// Targets are the requested targets or goal names. Empty means the "all"
	// goal.
	Targets []string

	// DataRoot, Mode, Workers and MetricsAddr override their profile
	// counterparts when set.
	DataRoot    string
	Mode        string
	Workers     int
	MetricsAddr string

	// Force rebuilds targets even when their outputs are fresh.
	Force bool
	// DryRun prints the planned jobs in execution order instead of running
	// them.
	DryRun bool
	// ReportPath, when set, receives the full build result as JSON.
	ReportPath string

	LogLevel  string
	LogFormat string
}

// applyTo folds the command-line overrides into the profile.
func (c *Config) applyTo(p *profile.Profile) {
	if c.DataRoot != "" {
		p.DataRoot = c.DataRoot
	}
	if c.Mode != "" {
		p.Mode = c.Mode
	}
	if c.Workers != 0 {
		p.Workers = c.Workers
	}
	if c.MetricsAddr != "" {
		p.MetricsAddr = c.MetricsAddr
	}
}
