package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/state"
	"github.com/imamik/stackforge/internal/util/retry"
)

// ErrAborted is returned when the confirmation hook declines a plan.
var ErrAborted = errors.New("aborted by user")

// ZoneResolver finds the DNS zone that serves a domain.
type ZoneResolver interface {
	LookupZone(ctx context.Context, domain string) (string, error)
}

// Dependencies are the external collaborators of a Stack.
type Dependencies struct {
	Provider provider.Provider
	Backend  state.Backend
	Locker   state.Locker
	Zones    ZoneResolver
	// Prepare readies the state backend, e.g. creates the bucket. Optional.
	Prepare func(ctx context.Context) error
}

// ConfirmFunc decides, under the lock, whether a non-empty plan proceeds.
type ConfirmFunc func(plan *engine.Plan) (bool, error)

// Stack runs plan, apply and destroy for one environment.
type Stack struct {
	env      config.Environment
	deps     Dependencies
	timeouts *config.Timeouts
	observer engine.Observer
	metrics  *engine.Metrics
	refresh  bool
	confirm  ConfirmFunc
}

// Option customises a Stack.
type Option func(*Stack)

// WithObserver sets the observer for graph building and the engine.
func WithObserver(o engine.Observer) Option {
	return func(s *Stack) {
		s.observer = o
	}
}

// WithMetrics records provider calls in m.
func WithMetrics(m *engine.Metrics) Option {
	return func(s *Stack) {
		s.metrics = m
	}
}

// WithTimeouts overrides the timeouts loaded from the environment.
func WithTimeouts(t *config.Timeouts) Option {
	return func(s *Stack) {
		s.timeouts = t
	}
}

// WithRefresh reads every recorded resource before planning.
func WithRefresh(enabled bool) Option {
	return func(s *Stack) {
		s.refresh = enabled
	}
}

// WithConfirm asks fn before a non-empty plan is applied or destroyed.
func WithConfirm(fn ConfirmFunc) Option {
	return func(s *Stack) {
		s.confirm = fn
	}
}

// New creates a Stack for env.
func New(env config.Environment, deps Dependencies, opts ...Option) *Stack {
	s := &Stack{
		env:      env,
		deps:     deps,
		timeouts: config.LoadTimeouts(),
		observer: engine.NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes a finished operation.
type Result struct {
	Plan    *engine.Plan
	Report  *engine.Report
	Outputs map[string]any
	// Refreshed lists resources dropped because they no longer exist. Drifted
	// inputs show up as plan changes instead.
	Refreshed []string
}

// session is the locked phase of one operation.
type session struct {
	st     *state.State
	zoneID string
	unlock func()
}

// open resolves the backend and zone, acquires the lock, then loads state.
// Nothing is mutated before open returns.
func (s *Stack) open(ctx context.Context, operation string, needZone bool) (*session, error) {
	sess := &session{}
	info := state.NewLockInfo(s.env.LockID(), operation)
	locked := false

	tasks := []Task{{Name: "state lock", Func: func(ctx context.Context) error {
		if s.deps.Prepare != nil {
			if err := s.deps.Prepare(ctx); err != nil {
				return err
			}
		}
		if err := state.AcquireLock(ctx, s.deps.Locker, info, s.env.Backend.LockMode, s.timeouts.LockWait); err != nil {
			return err
		}
		locked = true
		return nil
	}}}
	if needZone {
		tasks = append(tasks, Task{Name: "dns zone", Func: func(ctx context.Context) error {
			id, err := s.resolveZone(ctx)
			sess.zoneID = id
			return err
		}})
	}

	err := RunParallel(ctx, tasks, s.observer)
	sess.unlock = func() {
		if !locked {
			return
		}
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.deps.Locker.Unlock(uctx, info); err != nil {
			s.observer.Printf("failed to release state lock %s: %v", info.Path, err)
		}
	}
	if err != nil {
		sess.unlock()
		return nil, err
	}

	sess.st, err = s.deps.Backend.Load(ctx)
	if err != nil {
		sess.unlock()
		return nil, err
	}
	return sess, nil
}

func (s *Stack) resolveZone(ctx context.Context) (string, error) {
	if s.env.DNS.ZoneID != "" {
		return s.env.DNS.ZoneID, nil
	}
	if s.deps.Zones == nil {
		return "", fmt.Errorf("no DNS zone configured for %s", s.env.Subdomain())
	}
	return s.deps.Zones.LookupZone(ctx, s.env.Subdomain())
}

func (s *Stack) engine() *engine.Engine {
	opts := []engine.Option{
		engine.WithObserver(s.observer),
		engine.WithMetrics(s.metrics),
		engine.WithParallelism(s.env.Parallelism),
		engine.WithRetryOptions(
			retry.WithMaxRetries(s.timeouts.RetryMaxAttempts),
			retry.WithInitialDelay(s.timeouts.RetryInitialDelay),
		),
	}
	return engine.New(s.deps.Provider, s.deps.Backend, opts...)
}

// plan builds the graph and diffs it against the session state.
func (s *Stack) plan(ctx context.Context, sess *session, e *engine.Engine) (*graph.Graph, *engine.Plan, []string, error) {
	var refreshed []string
	if s.refresh {
		var err error
		if refreshed, err = e.Refresh(ctx, sess.st); err != nil {
			return nil, nil, nil, err
		}
	}
	g, err := buildGraph(ctx, s.env, sess.zoneID, s.observer)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := engine.BuildPlan(g, sess.st)
	if err != nil {
		return nil, nil, nil, err
	}
	return g, p, refreshed, nil
}

// Plan returns the changes Apply would make.
func (s *Stack) Plan(ctx context.Context) (*Result, error) {
	sess, err := s.open(ctx, "plan", true)
	if err != nil {
		return nil, err
	}
	defer sess.unlock()

	_, p, refreshed, err := s.plan(ctx, sess, s.engine())
	if err != nil {
		return nil, err
	}
	return &Result{Plan: p, Outputs: sess.st.Outputs, Refreshed: refreshed}, nil
}

// Apply plans and applies the stack. A re-apply of an unchanged
// environment makes no mutating provider call.
func (s *Stack) Apply(ctx context.Context) (*Result, error) {
	sess, err := s.open(ctx, "apply", true)
	if err != nil {
		return nil, err
	}
	defer sess.unlock()

	e := s.engine()
	g, p, refreshed, err := s.plan(ctx, sess, e)
	if err != nil {
		return nil, err
	}
	res := &Result{Plan: p, Refreshed: refreshed}
	if err := s.confirmPlan(p); err != nil {
		return res, err
	}

	res.Report, err = e.Apply(ctx, g, sess.st, p)
	res.Outputs = sess.st.Outputs
	return res, err
}

// Destroy deletes every recorded resource. Resources protected by
// preventDestroy fail the plan before any provider call.
func (s *Stack) Destroy(ctx context.Context) (*Result, error) {
	sess, err := s.open(ctx, "destroy", false)
	if err != nil {
		return nil, err
	}
	defer sess.unlock()

	g, err := s.destroyGraph(ctx, sess.st)
	if err != nil {
		return nil, err
	}
	p, err := engine.PlanDestroy(g, sess.st)
	if err != nil {
		return nil, err
	}
	res := &Result{Plan: p}
	if err := s.confirmPlan(p); err != nil {
		return res, err
	}

	res.Report, err = s.engine().Destroy(ctx, sess.st, p)
	res.Outputs = sess.st.Outputs
	return res, err
}

// destroyGraph builds the declared graph so destroy honours the current
// lifecycle flags. The zone comes from state first, so a deleted hosted
// zone does not block teardown; without any zone the graph is nil and the
// lifecycle flags recorded in state apply.
func (s *Stack) destroyGraph(ctx context.Context, st *state.State) (*graph.Graph, error) {
	zoneID := recordedZone(st)
	if zoneID == "" {
		id, err := s.resolveZone(ctx)
		if err != nil {
			s.observer.Printf("dns zone unavailable, using lifecycle flags from state: %v", err)
			return nil, nil
		}
		zoneID = id
	}
	return buildGraph(ctx, s.env, zoneID, s.observer)
}

// recordedZone returns the hosted zone the certificate records were
// written to, or "" when none is recorded.
func recordedZone(st *state.State) string {
	for _, addr := range st.Addresses() {
		r, _ := st.Get(addr)
		if id, ok := r.Inputs["zone_id"].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

// Outputs returns the published outputs recorded by the last apply.
func (s *Stack) Outputs(ctx context.Context) (map[string]any, error) {
	sess, err := s.open(ctx, "outputs", false)
	if err != nil {
		return nil, err
	}
	defer sess.unlock()
	return sess.st.Outputs, nil
}

// Unlock force-releases a stale lock.
func (s *Stack) Unlock(ctx context.Context, lockID string) error {
	if lockID == "" {
		lockID = s.env.LockID()
	}
	return s.deps.Locker.ForceUnlock(ctx, lockID)
}

func (s *Stack) confirmPlan(p *engine.Plan) error {
	if s.confirm == nil || p.Empty() {
		return nil
	}
	ok, err := s.confirm(p)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAborted
	}
	return nil
}
