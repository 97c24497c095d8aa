package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/fsutil"
	"github.com/vk/promptgrid/internal/plan"
	"github.com/vk/promptgrid/internal/script"
	"github.com/vk/promptgrid/internal/validate"
	"github.com/vk/promptgrid/internal/vars"
)

// dotenvFile is read from the script's directory when present.
const dotenvFile = ".env"

// ErrVariableSource marks a --var, --var-file or .env source that cannot be
// read.
var ErrVariableSource = errors.New("invalid variable source")

// Workflow is a parsed script together with its resolved variables.
type Workflow struct {
	Script    *script.Script
	Input     *vars.Input
	InputPath string
	Bindings  *vars.Bindings
}

// Load parses the script and resolves its variables. Sources are consulted
// in precedence order: --var flags, --var-file files (later files first),
// PROMPTGRID_VAR_* from the environment and the script's .env, then the
// script defaults.
func (a *App) Load(ctx context.Context) (*Workflow, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)
	if err := a.config.requireScript(); err != nil {
		return nil, err
	}

	s, err := script.ParseFile(a.config.ScriptPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Script parsed.", "script", s.Name, "steps", len(s.Steps), "variables", len(s.Variables))

	w := &Workflow{Script: s, InputPath: a.inputPath(s)}
	if w.InputPath != "" {
		w.Input, err = a.inputs.Load(w.InputPath)
		if err != nil {
			return nil, err
		}
		logger.Debug("Shared input loaded.", "path", w.InputPath, "entries", w.Input.Len())
	}

	sources, err := a.sources(ctx, s)
	if err != nil {
		return nil, err
	}
	w.Bindings, err = vars.Resolve(s, w.Input, sources...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Variables resolved.", "names", w.Bindings.Names())
	return w, nil
}

// inputPath prefers --input over the script's input_config, which is
// relative to the script.
func (a *App) inputPath(s *script.Script) string {
	if a.config.InputPath != "" {
		return a.config.InputPath
	}
	return fsutil.ResolveRelative(s.Filename, s.InputConfig)
}

func (a *App) sources(ctx context.Context, s *script.Script) ([]vars.Source, error) {
	flags, err := vars.NewFlagSource(a.config.Vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVariableSource, err)
	}
	warnUndeclared(ctx, s, flags)
	sources := []vars.Source{flags}

	for i := len(a.config.VarFiles) - 1; i >= 0; i-- {
		src, err := vars.NewJSONFileSource(a.config.VarFiles[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrVariableSource, err)
		}
		warnUndeclared(ctx, s, src)
		sources = append(sources, src)
	}

	dotenv, err := vars.ReadDotenv(filepath.Join(filepath.Dir(s.Filename), dotenvFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVariableSource, err)
	}
	sources = append(sources, vars.NewEnvSource(a.environ(), dotenv))
	return sources, nil
}

// warnUndeclared logs the values src supplies for variables s does not
// declare. They are ignored.
func warnUndeclared(ctx context.Context, s *script.Script, src *vars.MapSource) {
	for _, name := range src.Keys() {
		if _, ok := s.Variable(name); !ok {
			ctxlog.FromContext(ctx).Warn("Value given for an undeclared variable.", "variable", name, "source", src.Name())
		}
	}
}

// Validate loads the workflow and checks it without touching the network or
// the output directory.
func (a *App) Validate(ctx context.Context) (*Workflow, error) {
	ctx = a.context(ctx)
	w, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := validate.New(a.registry).Validate(w.Script, w.Bindings); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("✅ Script is valid.", "script", w.Script.Filename)
	return w, nil
}

// Plan validates the workflow and expands it into step instances.
func (a *App) Plan(ctx context.Context) (*plan.Plan, error) {
	w, err := a.Load(a.context(ctx))
	if err != nil {
		return nil, err
	}
	return a.plan(w)
}

func (a *App) plan(w *Workflow) (*plan.Plan, error) {
	if err := validate.New(a.registry).Validate(w.Script, w.Bindings); err != nil {
		return nil, err
	}
	p, err := plan.Build(w.Script, w.Bindings)
	if err != nil {
		return nil, fmt.Errorf("failed to build plan: %w", err)
	}
	return p, nil
}

// PrintPlan writes the expanded plan to the output writer.
func (a *App) PrintPlan(ctx context.Context) error {
	p, err := a.Plan(ctx)
	if err != nil {
		return err
	}
	return plan.Render(a.outW, p, a.config.Format)
}
