package executor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vk/promptgrid/internal/adapter"
	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/plan"
)

const interruptTimeout = 10 * time.Second

// runInstance performs one step instance. Once started, the step runs
// detached from runCtx: its attempts and retries finish or time out on their
// own.
func (e *Executor) runInstance(runCtx context.Context, inst plan.Instance) Result {
	stepCtx := ctxlog.With(context.WithoutCancel(runCtx), "step", inst.ID)
	logger := ctxlog.FromContext(stepCtx)
	res := pendingResult(inst)
	res.State = InFlight

	e.notifyStarted(inst)
	logger.Info("▶️ Starting step.", "adapter", inst.Adapter, "output", inst.Output)
	logger.Debug("Step request.", "request", formatRequestForLogs(inst.Request))
	start := time.Now()

	ad, err := e.adapterFor(inst.Adapter)
	if err == nil {
		var resp *adapter.Response
		resp, res.Attempts, res.Reused, err = e.generate(stepCtx, ad, inst)
		if err == nil {
			res.Outputs, err = e.saver.Save(stepCtx, inst.Output, resp.Images)
			if err != nil {
				err = &writeError{err: err}
			}
		}
	}

	res.Duration = time.Since(start)
	res.Err = err
	res.State, res.Kind = classify(err)
	if err != nil {
		logger.Error("❌ Step failed.", "state", res.State, "kind", res.Kind, "attempts", res.Attempts, "error", err)
	} else {
		logger.Info("✅ Finished step.", "attempts", res.Attempts, "reused", res.Reused, "outputs", res.Outputs, "duration", res.Duration)
	}
	e.notifyFinished(res)
	return res
}

// generate returns the images of inst, reusing an identical deterministic
// request of the same run when enabled. Concurrent identical requests share
// one call.
func (e *Executor) generate(stepCtx context.Context, ad adapter.Adapter, inst plan.Instance) (*adapter.Response, int, bool, error) {
	if e.memo == nil || !inst.Request.Deterministic() {
		resp, attempts, err := e.retry(stepCtx, ad, inst)
		return resp, attempts, false, err
	}

	key, err := memoKey(inst)
	if err != nil {
		return nil, 0, false, err
	}
	if v, ok := e.memo.Get(key); ok {
		ctxlog.FromContext(stepCtx).Debug("Reusing images of an identical request.")
		return v.(*adapter.Response), 0, true, nil
	}

	attempts := 0
	ran := false
	v, err, _ := e.flight.Do(key, func() (any, error) {
		ran = true
		resp, n, err := e.retry(stepCtx, ad, inst)
		attempts = n
		if err != nil {
			return nil, err
		}
		e.memo.SetDefault(key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, attempts, !ran, err
	}
	return v.(*adapter.Response), attempts, !ran, nil
}

// retry runs attempts until one succeeds, a non-retryable error occurs or
// the retry budget is spent.
func (e *Executor) retry(stepCtx context.Context, ad adapter.Adapter, inst plan.Instance) (*adapter.Response, int, error) {
	logger := ctxlog.FromContext(stepCtx)
	timeout := e.timeoutFor(inst)

	var (
		resp     *adapter.Response
		lastErr  error
		attempts int
	)
	operation := func() error {
		attempts++
		r, err := e.attempt(ctxlog.With(stepCtx, "attempt", attempts), ad, inst, timeout)
		lastErr = err
		if err == nil {
			resp = r
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Attempt failed, retrying.", "attempt", attempts, "wait", wait, "error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), uint64(e.retriesFor(inst))), stepCtx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return nil, attempts, err
	}
	return resp, attempts, nil
}

func (e *Executor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if e.cfg.BackoffInitial > 0 {
		b.InitialInterval = e.cfg.BackoffInitial
	}
	if e.cfg.BackoffMax > 0 {
		b.MaxInterval = e.cfg.BackoffMax
	}
	b.MaxElapsedTime = 0
	return b
}

// attempt performs a single adapter call bounded by timeout.
func (e *Executor) attempt(ctx context.Context, ad adapter.Adapter, inst plan.Instance, timeout time.Duration) (*adapter.Response, error) {
	logger := ctxlog.FromContext(ctx)
	actx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	logger.Debug("Calling adapter.")
	resp, err := ad.Generate(actx, inst.Request)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(actx.Err(), context.DeadlineExceeded) {
		return nil, err
	}

	if e.cfg.CancelOnTimeout {
		if in, ok := ad.(adapter.Interrupter); ok {
			ictx, icancel := context.WithTimeout(ctx, interruptTimeout)
			if ierr := in.Interrupt(ictx); ierr != nil {
				logger.Warn("Failed to interrupt timed out generation.", "error", ierr)
			}
			icancel()
		}
	}
	return nil, &TimeoutError{ID: inst.ID, Timeout: timeout, Err: err}
}
