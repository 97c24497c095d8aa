package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/plan"
)

const watchDebounce = 200 * time.Millisecond

// Watch validates and plans the workflow, then does it again whenever the
// script, its shared input, its .env or a var file is saved. It returns when
// ctx is done.
func (a *App) Watch(ctx context.Context) error {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)
	if err := a.config.requireScript(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer watcher.Close()

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
	}

	dirs := map[string]bool{}
	a.watchDirs(ctx, watcher, a.watchedFiles(nil), dirs)
	logger.Info("👀 Watching for changes...", "script", a.config.ScriptPath)
	files := a.check(ctx)
	a.watchDirs(ctx, watcher, files, dirs)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Watch stopped.")
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !files[filepath.Clean(ev.Name)] {
				continue
			}
			logger.Debug("Watched file changed.", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			files = a.check(ctx)
			a.watchDirs(ctx, watcher, files, dirs)
		}
	}
}

// check loads, validates and plans the workflow once, printing the plan or
// the problems. It returns the absolute paths of the files the result
// depends on.
func (a *App) check(ctx context.Context) map[string]bool {
	fmt.Fprintf(a.outW, "\n[%s] %s\n", a.now().Format("15:04:05"), a.config.ScriptPath)

	w, err := a.Load(ctx)
	files := a.watchedFiles(w)
	var p *plan.Plan
	if err == nil {
		p, err = a.plan(w)
	}
	if err != nil {
		fmt.Fprintf(a.outW, "❌ %v\n", err)
		return files
	}
	if err := plan.Render(a.outW, p, a.config.Format); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to render plan.", "error", err)
	}
	return files
}

func (a *App) watchedFiles(w *Workflow) map[string]bool {
	paths := []string{
		a.config.ScriptPath,
		filepath.Join(filepath.Dir(a.config.ScriptPath), dotenvFile),
	}
	paths = append(paths, a.config.VarFiles...)
	switch {
	case w != nil && w.InputPath != "":
		paths = append(paths, w.InputPath)
	case a.config.InputPath != "":
		paths = append(paths, a.config.InputPath)
	}

	files := make(map[string]bool, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			files[abs] = true
		}
	}
	return files
}

// watchDirs watches the directory of every file. Editors often save by
// replacing the file, which a watch on the file itself would lose.
func (a *App) watchDirs(ctx context.Context, watcher *fsnotify.Watcher, files, dirs map[string]bool) {
	for file := range files {
		dir := filepath.Dir(file)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			ctxlog.FromContext(ctx).Warn("Cannot watch directory.", "dir", dir, "error", err)
			continue
		}
		dirs[dir] = true
	}
}
