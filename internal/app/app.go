package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/corpusmill/internal/ctxlog"
	"github.com/vk/corpusmill/internal/profile"
	"github.com/vk/corpusmill/internal/recipes"
	"github.com/vk/corpusmill/internal/rules"
	"github.com/vk/corpusmill/internal/sources"
)

// App is one resolved build invocation, ready to plan and run.
type App struct {
	cfg      Config
	outW     io.Writer
	logger   *slog.Logger
	profile  *profile.Profile
	table    *sources.Table
	registry *rules.Registry
}

// New resolves the configuration into an App. outW receives command output
// such as dry-run plans; logs go to logW.
func New(outW, logW io.Writer, cfg Config, loader profile.Loader) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	prof := profile.Default()
	if cfg.ProfilePath != "" {
		var err error
		prof, err = loader.Load(ctx, cfg.ProfilePath)
		if err != nil {
			return nil, err
		}
	}
	cfg.applyTo(prof)
	if err := prof.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = []string{"all"}
	}

	mode, err := sources.ParseMode(prof.Mode)
	if err != nil {
		return nil, err
	}
	tab, err := sources.Load(mode)
	if err != nil {
		return nil, err
	}
	logger.Debug("Source table loaded.", "mode", mode, "languages", len(tab.Languages()))

	reg, err := recipes.BuildRegistry(tab, prof)
	if err != nil {
		return nil, fmt.Errorf("assembling rule registry: %w", err)
	}

	return &App{
		cfg:      cfg,
		outW:     outW,
		logger:   logger,
		profile:  prof,
		table:    tab,
		registry: reg,
	}, nil
}

// Profile exposes the resolved profile, primarily for the history command
// and tests.
func (a *App) Profile() *profile.Profile { return a.profile }
