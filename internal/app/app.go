// Package app wires the quoter's dependencies and runs the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyquoter/internal/config"
)

// App owns the configuration, the logger and the cleanup functions run on
// shutdown in reverse order.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	root    *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		root:   logger,
	}
}

// Run wires dependencies, starts the selected mode and blocks until it ends
// or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("market", a.cfg.Market.QuestionID),
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.root)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case config.ModeLive:
		return a.LiveMode(ctx, deps)
	case config.ModePaper:
		return a.PaperMode(ctx, deps)
	case config.ModeArchive:
		return a.ArchiveMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close runs the cleanup functions. Later calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
