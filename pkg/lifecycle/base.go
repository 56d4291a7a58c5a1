package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/bft-labs/stagehand/pkg/log"
)

// Option configures a Base.
type Option func(*Base)

// WithLogger sets the logger used for transitions and child failures.
func WithLogger(logger log.Logger) Option {
	return func(b *Base) {
		b.logger = log.OrNoop(logger)
	}
}

// WithStateListener registers a listener for state changes.
func WithStateListener(l StateListener) Option {
	return func(b *Base) {
		if l != nil {
			b.listeners = append(b.listeners, l)
		}
	}
}

// Base implements Component around a set of Hooks and acts as the Owner of
// nested components. Concrete components embed *Base.
type Base struct {
	mu          sync.RWMutex
	name        string
	state       State
	initialized bool
	owner       Component

	hooks     Hooks
	logger    log.Logger
	listeners []StateListener

	// inflight is closed when the running hook returns. pending is set by a
	// Stop or Terminate that stopped waiting for it.
	inflight chan struct{}
	pending  bool

	children   map[string]State
	childOrder []string
}

// NewBase creates a component in StateStopped.
func NewBase(name string, hooks Hooks, opts ...Option) *Base {
	b := &Base{
		name:     name,
		state:    StateStopped,
		hooks:    hooks,
		logger:   log.NewNoopLogger(),
		children: make(map[string]State),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(log.Component(name))
	return b
}

// Name returns the component name.
func (b *Base) Name() string { return b.name }

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Initialized reports whether Initialize has completed at least once.
func (b *Base) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// Owner returns the component driving this one, or nil at the top of the tree.
func (b *Base) Owner() Component {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.owner
}

// Logger returns the component-scoped logger.
func (b *Base) Logger() log.Logger { return b.logger }

// ChildStates returns the last recorded state of each child driven by this component.
func (b *Base) ChildStates() map[string]State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]State, len(b.children))
	for k, v := range b.children {
		out[k] = v
	}
	return out
}

// Children returns child names in the order they were first driven.
func (b *Base) Children() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.childOrder...)
}

func (b *Base) setOwner(owner Component) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owner == nil {
		b.owner = owner
	}
}

// Initialize runs the initialize hook: Stopped -> Initializing -> Initialized | Error.
func (b *Base) Initialize(ctx context.Context, m *Monitor) error {
	if err := b.check(OpInitialize); err != nil {
		return err
	}
	return b.run(ctx, m, OpInitialize, StateInitializing, StateInitialized, b.hooks.Initialize)
}

// Start runs the start hook: Initialized -> Starting -> Started | Error.
// Starting a component that was never initialized is a UsageError.
func (b *Base) Start(ctx context.Context, m *Monitor) error {
	if err := b.check(OpStart); err != nil {
		return err
	}
	return b.run(ctx, m, OpStart, StateStarting, StateStarted, b.hooks.Start)
}

// Stop runs the stop hook: Started -> Stopping -> Stopped | Error.
// A component that is not running is left alone. From Error the hook still
// runs so partially acquired resources are released.
//
// A start still in progress is waited for until ctx is done. If it outlives
// ctx, Stop returns and the stop hook runs as soon as that start returns.
func (b *Base) Stop(ctx context.Context, m *Monitor) error {
	if b.State() == StateStarting && !b.awaitInflight(ctx) {
		b.logger.Warn("start still running, stop deferred until it returns")
		return nil
	}
	switch state := b.State(); state {
	case StateStarted, StateError:
		return b.run(ctx, m, OpStop, StateStopping, StateStopped, b.hooks.Stop)
	default:
		b.logger.Debug("stop skipped", log.String("state", state.String()))
		return nil
	}
}

// Terminate runs the terminate hook once and always ends in Terminated.
// An operation still running is waited for until ctx is done, like Stop.
func (b *Base) Terminate(ctx context.Context, m *Monitor) error {
	if b.State() == StateTerminated {
		return nil
	}
	if !b.awaitInflight(ctx) {
		b.logger.Warn("operation still running, its resources are released when it returns")
	}
	var err error
	if b.hooks.Terminate != nil {
		err = b.hooks.Terminate(ctx, m)
	}
	reason := "terminated"
	if err != nil {
		reason = "terminated with error: " + err.Error()
	}
	if terr := b.TransitionTo(StateTerminated, reason); terr != nil {
		return terr
	}
	return err
}

// check validates preconditions that are usage errors rather than transitions.
func (b *Base) check(op Operation) error {
	b.mu.RLock()
	state, initialized := b.state, b.initialized
	b.mu.RUnlock()

	switch {
	case state == StateTerminated:
		return b.usage(op, ErrTerminated)
	case op == OpStart && state == StateStarted:
		return b.usage(op, ErrAlreadyStarted)
	case op == OpStart && !initialized:
		return b.usage(op, ErrNotInitialized)
	}
	return nil
}

func (b *Base) run(ctx context.Context, m *Monitor, op Operation, during, after State, hook HookFunc) error {
	done := make(chan struct{})
	b.mu.Lock()
	if b.inflight != nil {
		b.mu.Unlock()
		return b.usage(op, ErrInProgress)
	}
	b.inflight = done
	b.mu.Unlock()

	if err := b.TransitionTo(during, op.String()+" requested"); err != nil {
		b.settle(done)
		return b.usage(op, err)
	}

	var err error
	if hook != nil {
		err = hook(ctx, m)
	}
	if err != nil {
		_ = b.TransitionTo(StateError, err.Error())
	} else {
		if op == OpInitialize {
			b.mu.Lock()
			b.initialized = true
			b.mu.Unlock()
		}
		err = b.TransitionTo(after, op.String()+" completed")
	}

	if b.settle(done) {
		b.releaseAbandoned(context.WithoutCancel(ctx), m, op)
	}
	return err
}

// settle marks the running hook as returned and reports whether a Stop or
// Terminate gave up waiting for it.
func (b *Base) settle(done chan struct{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.pending
	b.inflight, b.pending = nil, false
	close(done)
	return pending
}

// awaitInflight waits for a running hook to return. It reports false when ctx
// ended first; the hook's caller then releases what the hook acquired.
func (b *Base) awaitInflight(ctx context.Context) bool {
	b.mu.RLock()
	done := b.inflight
	b.mu.RUnlock()
	if done == nil {
		return true
	}

	select {
	case <-done:
		return true
	case <-ctx.Done():
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight != done {
		return true
	}
	b.pending = true
	return false
}

// releaseAbandoned undoes an operation that returned after a Stop or
// Terminate stopped waiting for it.
func (b *Base) releaseAbandoned(ctx context.Context, m *Monitor, op Operation) {
	b.logger.Warn("releasing resources of abandoned " + op.String())

	if b.State() != StateTerminated {
		if err := b.Stop(ctx, m); err != nil {
			b.logger.Error("release after abandoned "+op.String(), log.Err(err))
		}
		return
	}

	hooks := []HookFunc{b.hooks.Terminate}
	if op == OpStart {
		hooks = []HookFunc{b.hooks.Stop, b.hooks.Terminate}
	}
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, m); err != nil {
			b.logger.Error("release after abandoned "+op.String(), log.Err(err))
		}
	}
}

// TransitionTo attempts to transition to a new state.
// Returns an error wrapping ErrInvalidTransition if the transition is not valid.
func (b *Base) TransitionTo(newState State, reason string) error {
	b.mu.Lock()
	oldState := b.state
	if !CanTransition(oldState, newState) {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldState, newState)
	}
	b.state = newState
	listeners := b.listeners
	b.mu.Unlock()

	// Emit events outside of lock
	for _, l := range listeners {
		l.OnStateChange(b.name, oldState, newState, reason)
	}

	b.logger.Debug("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

func (b *Base) usage(op Operation, err error) error {
	return &UsageError{Op: op, Component: b.name, Err: err}
}

// InitializeChild initializes child on behalf of this component.
func (b *Base) InitializeChild(ctx context.Context, child Component, m *Monitor, opts ChildOptions) error {
	return b.runChild(ctx, OpInitialize, child, m, opts)
}

// StartChild starts child on behalf of this component. A failure of a
// required child is returned as a *StepError; an optional child's failure
// is logged and absorbed.
func (b *Base) StartChild(ctx context.Context, child Component, m *Monitor, opts ChildOptions) error {
	return b.runChild(ctx, OpStart, child, m, opts)
}

// StopChild stops child on behalf of this component. Failures are logged, never returned.
func (b *Base) StopChild(ctx context.Context, child Component, m *Monitor, opts ChildOptions) error {
	return b.runChild(ctx, OpStop, child, m, opts)
}

// TerminateChild terminates child on behalf of this component. Failures are logged, never returned.
func (b *Base) TerminateChild(ctx context.Context, child Component, m *Monitor, opts ChildOptions) error {
	return b.runChild(ctx, OpTerminate, child, m, opts)
}

func (b *Base) runChild(ctx context.Context, op Operation, child Component, m *Monitor, opts ChildOptions) error {
	if isNil(child) {
		return &UsageError{Op: op, Component: b.name, Step: opts.Step, Err: ErrNilTarget}
	}
	if o, ok := child.(interface{ setOwner(Component) }); ok {
		o.setOwner(b)
	}

	err := callWithTimeout(ctx, opts.Timeout, func(ctx context.Context) error {
		return op.apply(ctx, child, m)
	})

	state := child.State()
	if err != nil {
		state = StateError
	}
	b.recordChild(child.Name(), state)

	if err == nil {
		return nil
	}

	msg := opts.ErrorMessage
	if msg == "" {
		msg = defaultErrorMessage(op, child.Name())
	}
	fields := []log.Field{
		log.String("child", child.Name()),
		log.Step(opts.Step),
		log.Err(err),
	}

	switch {
	case op.lenient():
		b.logger.Warn(msg+", continuing shutdown", fields...)
		return nil
	case !opts.Required:
		b.logger.Warn(msg+", optional component skipped", fields...)
		return nil
	}

	b.logger.Error(msg, fields...)

	// Already wrapped further down the tree.
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	return &StepError{Step: opts.Step, Message: msg, Required: true, Err: err}
}

func (b *Base) recordChild(name string, state State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.children[name]; !ok {
		b.childOrder = append(b.childOrder, name)
	}
	b.children[name] = state
}

func defaultErrorMessage(op Operation, name string) string {
	return fmt.Sprintf("Unable to %s %s", op, name)
}

// isNil reports whether c is nil or an interface holding a nil pointer.
func isNil(c interface{}) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

var (
	_ Component = (*Base)(nil)
	_ Owner     = (*Base)(nil)
)
