package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/registry"
	"github.com/vk/promptgrid/internal/report"
	"github.com/vk/promptgrid/internal/vars"
	"github.com/vk/promptgrid/modules/a1111"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	inputs   *vars.InputLoader
	client   *http.Client
	environ  func() []string
	now      func() time.Time

	mu         sync.Mutex
	reporter   *report.Reporter
	httpServer *http.Server
}

// NewApp is the constructor for the main application. Results go to outW and
// logs to logW. With no modules the core modules are registered.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := reg.LoadBuiltin(ctx); err != nil {
		return nil, fmt.Errorf("failed to load built-in adapters: %w", err)
	}
	if cfg.AdaptersDir != "" {
		if err := reg.LoadManifests(ctx, cfg.AdaptersDir); err != nil {
			return nil, fmt.Errorf("failed to load adapters: %w", err)
		}
	}
	if err := reg.ValidateRegistry(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.", "adapters", reg.Names())

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		inputs:   vars.NewInputLoader(),
		client:   a1111.NewHTTPClient(),
		environ:  os.Environ,
		now:      time.Now,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Close releases the resources held by the app.
func (a *App) Close() error {
	a1111.CloseHTTPClient(a.client)
	return a.closeHealthcheckServer()
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
