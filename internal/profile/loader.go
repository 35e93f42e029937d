package profile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/vk/corpusmill/internal/ctxlog"
)

// Loader is the interface for a format-specific profile loader.
type Loader interface {
	// Load reads one configuration file and resolves it over the defaults.
	Load(ctx context.Context, path string) (*Profile, error)
}

// HCLLoader loads profiles written in HCL. Expressions can reference process
// environment variables through the `env` object and use the `format`
// function.
type HCLLoader struct {
	// Env is the variable set exposed as `env`. Tests inject their own.
	Env map[string]string
}

// NewHCLLoader returns a loader exposing the process environment.
func NewHCLLoader() *HCLLoader {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return &HCLLoader{Env: env}
}

// fileRoot decodes the top-level profile attributes and blocks.
type fileRoot struct {
	DataRoot    string    `hcl:"data_root,optional"`
	Mode        string    `hcl:"mode,optional"`
	Workers     int       `hcl:"workers,optional"`
	MetricsAddr string    `hcl:"metrics_addr,optional"`
	HistoryDir  string    `hcl:"history_dir,optional"`
	Seed        uint64    `hcl:"seed,optional"`
	Pools       []poolDef `hcl:"pool,block"`
	Tools       *toolsDef `hcl:"tools,block"`
}

type poolDef struct {
	Name     string `hcl:"name,label"`
	Capacity int    `hcl:"capacity"`
}

type toolsDef struct {
	XC        string `hcl:"xc,optional"`
	Wiki2Text string `hcl:"wiki2text,optional"`
	FastText  string `hcl:"fasttext,optional"`
	Curl      string `hcl:"curl,optional"`
}

// Load parses the file and overlays it on Default(). Attributes the file
// omits keep their defaults; pool blocks override per name.
func (l *HCLLoader) Load(ctx context.Context, path string) (*Profile, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading build profile.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing profile %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, l.evalContext(), &root); diags.HasErrors() {
		return nil, fmt.Errorf("decoding profile %s: %w", path, diags)
	}

	p := Default()
	if root.DataRoot != "" {
		p.DataRoot = root.DataRoot
	}
	if root.Mode != "" {
		p.Mode = root.Mode
	}
	if root.Workers != 0 {
		p.Workers = root.Workers
	}
	p.MetricsAddr = root.MetricsAddr
	p.HistoryDir = root.HistoryDir
	p.Seed = root.Seed

	seen := make(map[string]bool)
	for _, pool := range root.Pools {
		if seen[pool.Name] {
			return nil, fmt.Errorf("profile %s declares pool %q twice", path, pool.Name)
		}
		seen[pool.Name] = true
		p.Pools[pool.Name] = pool.Capacity
	}

	if root.Tools != nil {
		if root.Tools.XC != "" {
			p.Tools.XC = root.Tools.XC
		}
		if root.Tools.Wiki2Text != "" {
			p.Tools.Wiki2Text = root.Tools.Wiki2Text
		}
		if root.Tools.FastText != "" {
			p.Tools.FastText = root.Tools.FastText
		}
		if root.Tools.Curl != "" {
			p.Tools.Curl = root.Tools.Curl
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	logger.Debug("Profile loaded.", "dataRoot", p.DataRoot, "mode", p.Mode, "pools", len(p.Pools))
	return p, nil
}

// evalContext exposes `env` and the `format` function to profile expressions.
func (l *HCLLoader) evalContext() *hcl.EvalContext {
	envVals := make(map[string]cty.Value, len(l.Env))
	for k, v := range l.Env {
		envVals[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(envVals),
		},
		Functions: map[string]function.Function{
			"format": stdlib.FormatFunc,
		},
	}
}
