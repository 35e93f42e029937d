// Package profile defines the build profile: where the data tree lives, how
// parallel the build runs, capacities for the constrained resource pools, and
// which collaborator binaries the shell rules invoke. A Loader turns a
// configuration file into a Profile; the HCL implementation is the production
// one.
package profile

import (
	"fmt"
	"path/filepath"
)

// Tools names the external collaborator binaries rules shell out to. Tests
// point these at stubs.
type Tools struct {
	// XC is the corpus toolkit used for tokenizing, language-splitting and
	// shard recounting.
	XC string
	// Wiki2Text converts MediaWiki XML dumps to plain text.
	Wiki2Text string
	// FastText trains word embeddings from shuffled text.
	FastText string
	// Curl fetches upstream corpus files.
	Curl string
}

// Profile is the resolved build configuration.
type Profile struct {
	// DataRoot is the directory the whole data tree lives under.
	DataRoot string
	// Mode selects the source table, "full" or "test".
	Mode string
	// Workers is the default job parallelism. Zero means one per CPU.
	Workers int
	// MetricsAddr, when set, serves prometheus metrics during the build.
	MetricsAddr string
	// HistoryDir overrides where the build ledger lives.
	HistoryDir string
	// Seed is the base seed for deterministic shuffles.
	Seed uint64
	// Pools maps pool names to their capacities.
	Pools map[string]int
	// Tools are the collaborator binaries.
	Tools Tools
}

// Default returns the profile used when no configuration file is given.
// Downloads and the heavy training stages are serialized by default; upstream
// mirrors and GPU-sized memory budgets do not enjoy surprise parallelism.
func Default() *Profile {
	return &Profile{
		DataRoot: "data",
		Mode:     "full",
		Pools: map[string]int{
			"download":  1,
			"embedding": 1,
		},
		Tools: Tools{
			XC:        "xc-tools",
			Wiki2Text: "wiki2text",
			FastText:  "fasttext",
			Curl:      "curl",
		},
	}
}

// Validate checks the profile for configuration errors.
func (p *Profile) Validate() error {
	if p.DataRoot == "" {
		return fmt.Errorf("profile has no data_root")
	}
	if p.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", p.Workers)
	}
	for name, capacity := range p.Pools {
		if capacity < 1 {
			return fmt.Errorf("pool %q has capacity %d, want at least 1", name, capacity)
		}
	}
	for _, tool := range []struct{ name, value string }{
		{"xc", p.Tools.XC},
		{"wiki2text", p.Tools.Wiki2Text},
		{"fasttext", p.Tools.FastText},
		{"curl", p.Tools.Curl},
	} {
		if tool.value == "" {
			return fmt.Errorf("tool %q has no binary configured", tool.name)
		}
	}
	return nil
}

// HistoryPath is where the build ledger lives, defaulting to a dot directory
// under the data root.
func (p *Profile) HistoryPath() string {
	if p.HistoryDir != "" {
		return p.HistoryDir
	}
	return filepath.Join(p.DataRoot, ".corpusmill", "history")
}
