package executor

import (
	"context"

	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/plan"
	"golang.org/x/sync/errgroup"
)

// Run executes p and returns one result per instance, in plan order.
// Instances are dispatched in plan order to at most Concurrency workers.
// When ctx is cancelled, or a step fails under FailFast, steps already in
// flight run to completion and the rest end Cancelled. Run returns a
// *CancelledError if ctx was cancelled.
func (e *Executor) Run(ctx context.Context, p *plan.Plan) ([]Result, error) {
	logger := ctxlog.FromContext(ctx)
	results := make([]Result, p.Len())
	for i, inst := range p.Instances {
		results[i] = pendingResult(inst)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	work := make(chan int)
	var g errgroup.Group

	g.Go(func() error {
		defer close(work)
		for i := range p.Instances {
			select {
			case work <- i:
			case <-runCtx.Done():
				return nil
			}
		}
		return nil
	})

	for workerID := 0; workerID < e.cfg.Concurrency; workerID++ {
		g.Go(func() error {
			e.worker(runCtx, p, results, work, stop, workerID)
			return nil
		})
	}
	_ = g.Wait()

	skipped := 0
	for i := range results {
		if results[i].State != Pending {
			continue
		}
		skipped++
		results[i].State = Cancelled
		results[i].Kind = KindCancelled
		results[i].Err = errNotStarted
		e.notifyFinished(results[i])
	}
	if skipped > 0 {
		logger.Warn("Run stopped early.", "skipped", skipped)
	}

	if err := ctx.Err(); err != nil {
		return results, &CancelledError{Skipped: skipped, Cause: context.Cause(ctx)}
	}
	return results, nil
}

// worker is the processing loop of a single worker. Every index it receives
// is written to results by this worker only.
func (e *Executor) worker(ctx context.Context, p *plan.Plan, results []Result, work <-chan int, stop context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("Worker started.")

	for i := range work {
		if ctx.Err() != nil {
			continue
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				continue
			}
		}

		inst := p.Instances[i]
		res := e.runInstance(ctx, inst)
		results[i] = res

		if e.cfg.FailFast && (res.State == Failed || res.State == TimedOut) {
			logger.Warn("Stopping run after failure.", "step", inst.ID, "state", res.State)
			stop()
		}
	}
	logger.Debug("Worker finished.")
}
