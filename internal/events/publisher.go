// Package events publishes live run progress to a Socket.IO server.
package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/promptgrid/internal/ctxlog"
	"github.com/vk/promptgrid/internal/executor"
	"github.com/vk/promptgrid/internal/plan"
	"github.com/vk/promptgrid/internal/report"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names.
const (
	EventStepStarted  = "step_started"
	EventStepFinished = "step_finished"
	EventRunFinished  = "run_finished"
)

const defaultConnectTimeout = 15 * time.Second

// Config locates the Socket.IO server.
type Config struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// emitter is the part of *socket.Socket the publisher uses.
type emitter interface {
	Emit(ev string, args ...any) error
	Disconnect() *socket.Socket
}

// Publisher emits run progress events. It implements executor.Observer.
type Publisher struct {
	runID string
	io    emitter
}

// Dial connects to the server and waits for the connection to be accepted.
func Dial(ctx context.Context, cfg Config, runID string) (*Publisher, error) {
	logger := ctxlog.FromContext(ctx).With("component", "events", "url", cfg.URL)
	logger.Info("Connecting to event server...")

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("event server URL %q must include scheme and host", cfg.URL)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to event server.", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &Publisher{runID: runID, io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// StepStarted emits step_started.
func (p *Publisher) StepStarted(inst plan.Instance) {
	p.emit(EventStepStarted, startedPayload(p.runID, inst))
}

// StepFinished emits step_finished.
func (p *Publisher) StepFinished(res executor.Result) {
	p.emit(EventStepFinished, finishedPayload(p.runID, res))
}

// RunFinished emits run_finished with the counts of s.
func (p *Publisher) RunFinished(s *report.Summary) {
	p.emit(EventRunFinished, runPayload(s))
}

// Close disconnects from the server.
func (p *Publisher) Close() {
	p.io.Disconnect()
}

func (p *Publisher) emit(event string, payload map[string]any) {
	// Emit buffers while the connection is down, so a lost server never
	// blocks a worker.
	_ = p.io.Emit(event, payload)
}

func startedPayload(runID string, inst plan.Instance) map[string]any {
	return map[string]any{
		"run_id": runID,
		"index":  inst.Index,
		"id":     inst.ID,
		"step":   inst.Step,
		"output": inst.Output,
	}
}

func finishedPayload(runID string, res executor.Result) map[string]any {
	payload := map[string]any{
		"run_id":      runID,
		"index":       res.Index,
		"id":          res.ID,
		"step":        res.Step,
		"state":       string(res.State),
		"attempts":    res.Attempts,
		"duration_ms": res.Duration.Milliseconds(),
		"outputs":     res.Outputs,
	}
	if res.Err != nil {
		payload["error_kind"] = string(res.Kind)
		payload["error"] = res.Err.Error()
	}
	return payload
}

func runPayload(s *report.Summary) map[string]any {
	return map[string]any{
		"run_id":     s.RunID,
		"status":     s.Status,
		"elapsed_ms": s.ElapsedMS,
		"total":      s.Counts.Total,
		"succeeded":  s.Counts.Succeeded,
		"failed":     s.Counts.Failed,
		"timed_out":  s.Counts.TimedOut,
		"cancelled":  s.Counts.Cancelled,
		"outputs":    s.Outputs,
	}
}
