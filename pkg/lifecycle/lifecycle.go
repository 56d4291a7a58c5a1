package lifecycle

import (
	"context"
	"time"
)

// Operation is a lifecycle phase applied to a component.
type Operation int

const (
	OpInitialize Operation = iota
	OpStart
	OpStop
	OpTerminate
)

// String returns the lower-case verb for the operation.
func (o Operation) String() string {
	switch o {
	case OpInitialize:
		return "initialize"
	case OpStart:
		return "start"
	case OpStop:
		return "stop"
	case OpTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// lenient reports whether failures of this operation are always absorbed.
func (o Operation) lenient() bool {
	return o == OpStop || o == OpTerminate
}

// apply invokes the operation on c.
func (o Operation) apply(ctx context.Context, c Component, m *Monitor) error {
	switch o {
	case OpInitialize:
		return c.Initialize(ctx, m)
	case OpStart:
		return c.Start(ctx, m)
	case OpStop:
		return c.Stop(ctx, m)
	default:
		return c.Terminate(ctx, m)
	}
}

// Component is the lifecycle contract every managed component implements.
//
// Lifecycle methods on a single component must not be called concurrently;
// the owner serializes them. Name and State are safe to call at any time.
type Component interface {
	Name() string
	State() State

	Initialize(ctx context.Context, m *Monitor) error
	Start(ctx context.Context, m *Monitor) error

	// Stop must be safe on a component that never started.
	Stop(ctx context.Context, m *Monitor) error

	// Terminate releases whatever Stop left behind. Always callable, always terminal.
	Terminate(ctx context.Context, m *Monitor) error
}

// ChildOptions describes how an owner treats one nested operation.
type ChildOptions struct {
	// Step is the label of the step requesting the operation.
	Step string

	// ErrorMessage describes the failure. Defaults to "Unable to <op> <child>".
	ErrorMessage string

	// Required aborts the enclosing initialize/start sequence on failure.
	// Ignored for stop and terminate, which never abort.
	Required bool

	// Timeout bounds the child call. Zero means no bound.
	Timeout time.Duration
}

// Owner is the capability a component exposes to drive its children.
type Owner interface {
	InitializeChild(ctx context.Context, child Component, m *Monitor, opts ChildOptions) error
	StartChild(ctx context.Context, child Component, m *Monitor, opts ChildOptions) error
	StopChild(ctx context.Context, child Component, m *Monitor, opts ChildOptions) error
	TerminateChild(ctx context.Context, child Component, m *Monitor, opts ChildOptions) error
}

// HookFunc performs the component-specific part of a lifecycle operation.
type HookFunc func(ctx context.Context, m *Monitor) error

// Hooks supplies the behaviour Base runs for each operation. Nil hooks succeed.
type Hooks struct {
	Initialize HookFunc
	Start      HookFunc
	Stop       HookFunc
	Terminate  HookFunc
}

// StateListener is notified after every state change.
type StateListener interface {
	OnStateChange(component string, previous, current State, reason string)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(component string, previous, current State, reason string)

// OnStateChange calls f.
func (f StateListenerFunc) OnStateChange(component string, previous, current State, reason string) {
	f(component, previous, current, reason)
}
