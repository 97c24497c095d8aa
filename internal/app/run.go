package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/vk/promptgrid/internal/adapter"
	"github.com/vk/promptgrid/internal/artifact"
	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/events"
	"github.com/vk/promptgrid/internal/executor"
	"github.com/vk/promptgrid/internal/plan"
	"github.com/vk/promptgrid/internal/report"
)

// Run validates, plans and executes the workflow, then renders, persists and
// publishes the summary. Parse, resolution and validation errors return
// before anything is written to disk, after printing a summary with no steps. Once execution starts a summary is always
// returned, together with the error that ended the run early, if any.
func (a *App) Run(ctx context.Context) (*report.Summary, error) {
	ctx = a.context(ctx)
	a.logger.Debug("App.Run method started.")

	runID := uuid.NewString()
	p, err := a.Plan(ctx)
	if err != nil {
		// Nothing ran, so the summary is printed but never persisted.
		a.render(ctx, report.Aborted(runID, scriptName(a.config.ScriptPath), a.now(), err))
		return nil, err
	}

	ctx = ctxlog.With(ctx, "run_id", runID)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Plan built.", planSummary(p)...)

	var runDir string
	if a.config.RunDir {
		runDir = RunDirName(a.now(), p.Script)
	}
	store := artifact.NewStore(a.config.OutputDir, runDir, a.newMirror(ctx))
	rep := report.New(runID, runDir, store.Root, p)
	a.setReporter(rep)
	defer a.setReporter(nil)

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
	}

	observers := []executor.Observer{rep}
	publisher := a.newPublisher(ctx, runID)
	if publisher != nil {
		observers = append(observers, publisher)
		defer publisher.Close()
	}

	exec := executor.New(a.executorConfig(), a.registry, adapter.Endpoint{
		BaseURL: a.config.Endpoint,
		Client:  a.client,
	}, store, observers...)

	logger.Info("🚀 Starting run...", "instances", p.Len(), "concurrency", a.config.Concurrency, "artifacts_dir", store.Root)
	_, runErr := exec.Run(ctx, p)
	summary := rep.Summary(runErr)
	logger.Info("🏁 Run finished.", "status", summary.Status, "elapsed", summary.Elapsed())

	a.render(ctx, summary)
	a.persist(ctx, store.Root, summary)
	if publisher != nil {
		publisher.RunFinished(summary)
	}

	a.logger.Debug("App.Run method finished.")
	return summary, runErr
}

func (a *App) executorConfig() executor.Config {
	c := a.config
	return executor.Config{
		Timeout:         c.Timeout,
		Concurrency:     c.Concurrency,
		Retries:         c.Retries,
		BackoffInitial:  c.BackoffInitial,
		BackoffMax:      c.BackoffMax,
		FailFast:        c.FailFast,
		MinInterval:     c.MinInterval,
		CancelOnTimeout: c.CancelOnTimeout,
		ReuseIdentical:  c.ReuseIdentical,
	}
}

// newMirror connects the artifact mirror when one is configured. A mirror
// that cannot be reached is logged and the run goes ahead without it.
func (a *App) newMirror(ctx context.Context) artifact.Mirror {
	m := a.config.Mirror
	if !m.Enabled {
		return nil
	}
	mirror, err := artifact.NewObjectMirror(ctx, artifact.MirrorConfig{
		Endpoint:  m.Endpoint,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Region:    m.Region,
		UseSSL:    m.UseSSL,
		Bucket:    m.Bucket,
		Prefix:    m.Prefix,
	})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Artifact mirror disabled for this run.", "error", err)
		return nil
	}
	return mirror
}

// newPublisher connects to the event server when one is configured. Progress
// events are optional, so a failed connection only disables them.
func (a *App) newPublisher(ctx context.Context, runID string) *events.Publisher {
	ev := a.config.Events
	if ev.URL == "" {
		return nil
	}
	pub, err := events.Dial(ctx, events.Config{
		URL:                ev.URL,
		Namespace:          ev.Namespace,
		InsecureSkipVerify: ev.InsecureSkipVerify,
	}, runID)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Progress events disabled for this run.", "error", err)
		return nil
	}
	return pub
}

func (a *App) render(ctx context.Context, s *report.Summary) {
	if err := report.Render(a.outW, s, a.config.Format); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to render summary.", "error", err)
	}
}

func (a *App) persist(ctx context.Context, artifactsDir string, s *report.Summary) {
	logger := ctxlog.FromContext(ctx)
	if a.config.PersistSummary {
		path, err := report.Persist(artifactsDir, s)
		if err != nil {
			logger.Error("Failed to write run summary.", "error", err)
		} else {
			logger.Debug("Run summary written.", "path", path)
		}
	}
	if err := report.AppendHistory(a.config.OutputDir, report.NewHistoryEntry(s)); err != nil {
		logger.Error("Failed to append run history.", "error", err)
	}
}

func (a *App) setReporter(r *report.Reporter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reporter = r
}

func (a *App) currentReporter() *report.Reporter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reporter
}

// planSummary returns the log attributes describing p.
func planSummary(p *plan.Plan) []any {
	return []any{"script", p.Script, "instances", p.Len(), "ids", p.IDs()}
}
