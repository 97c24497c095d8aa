// Package executor runs the instances of an execution plan against their
// adapters on a bounded worker pool.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/vk/promptgrid/internal/adapter"
	"github.com/vk/promptgrid/internal/plan"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Config holds the run-wide execution settings. Steps may override Timeout
// and Retries.
type Config struct {
	Timeout         time.Duration
	Concurrency     int
	Retries         int
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	FailFast        bool
	MinInterval     time.Duration
	CancelOnTimeout bool
	ReuseIdentical  bool
}

// Observer is told about every step as it starts and finishes. Observers are
// called from worker goroutines and must be safe for concurrent use.
type Observer interface {
	StepStarted(inst plan.Instance)
	StepFinished(res Result)
}

// AdapterProvider creates the adapter a step instance names.
type AdapterProvider interface {
	NewAdapter(name string, ep adapter.Endpoint) (adapter.Adapter, error)
}

// Saver persists the images of a successful step.
type Saver interface {
	Save(ctx context.Context, rel string, images [][]byte) ([]string, error)
}

// Executor runs plans. One Executor serves a single run.
type Executor struct {
	cfg       Config
	provider  AdapterProvider
	endpoint  adapter.Endpoint
	saver     Saver
	observers []Observer

	limiter *rate.Limiter
	memo    *cache.Cache
	flight  singleflight.Group

	mu       sync.Mutex
	adapters map[string]adapter.Adapter
}

// New creates an Executor.
func New(cfg Config, provider AdapterProvider, ep adapter.Endpoint, saver Saver, observers ...Observer) *Executor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	e := &Executor{
		cfg:       cfg,
		provider:  provider,
		endpoint:  ep,
		saver:     saver,
		observers: observers,
		adapters:  make(map[string]adapter.Adapter),
	}
	if cfg.MinInterval > 0 {
		e.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	if cfg.ReuseIdentical {
		e.memo = cache.New(cache.NoExpiration, 0)
	}
	return e
}

func (e *Executor) adapterFor(name string) (adapter.Adapter, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ad, ok := e.adapters[name]; ok {
		return ad, nil
	}
	ad, err := e.provider.NewAdapter(name, e.endpoint)
	if err != nil {
		return nil, &adapterError{err: err}
	}
	e.adapters[name] = ad
	return ad, nil
}

func (e *Executor) notifyStarted(inst plan.Instance) {
	for _, o := range e.observers {
		o.StepStarted(inst)
	}
}

func (e *Executor) notifyFinished(res Result) {
	for _, o := range e.observers {
		o.StepFinished(res)
	}
}

func (e *Executor) timeoutFor(inst plan.Instance) time.Duration {
	if inst.Timeout > 0 {
		return inst.Timeout
	}
	return e.cfg.Timeout
}

func (e *Executor) retriesFor(inst plan.Instance) int {
	if inst.Retries >= 0 {
		return inst.Retries
	}
	return e.cfg.Retries
}

func memoKey(inst plan.Instance) (string, error) {
	payload, err := json.Marshal(inst.Request)
	if err != nil {
		return "", fmt.Errorf("failed to encode request of %s: %w", inst.ID, err)
	}
	return inst.Adapter + "\x00" + string(payload), nil
}
