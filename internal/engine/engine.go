package engine

import (
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/state"
	"github.com/imamik/stackforge/internal/util/retry"
)

// DefaultParallelism bounds concurrent provider calls.
const DefaultParallelism = 10

// Engine applies plans through a provider and persists state to a backend.
type Engine struct {
	provider    provider.Provider
	backend     state.Backend
	observer    Observer
	metrics     *Metrics
	parallelism int
	retryOpts   []retry.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithMetrics records provider calls and outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithParallelism bounds concurrent provider calls. Values below 1 are ignored.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.parallelism = n
		}
	}
}

// WithRetryOptions tunes the backoff used for retryable provider errors.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(e *Engine) {
		e.retryOpts = append(e.retryOpts, opts...)
	}
}

// New creates an engine.
func New(p provider.Provider, b state.Backend, opts ...Option) *Engine {
	e := &Engine{
		provider:    p,
		backend:     b,
		observer:    NopObserver{},
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
