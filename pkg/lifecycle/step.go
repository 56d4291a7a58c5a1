package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// Step is the unit of orchestration executed by a Composite.
type Step interface {
	Label() string

	// Required reports whether a failure must abort the enclosing sequence.
	Required() bool

	Execute(ctx context.Context, m *Monitor) error
}

// StepOption configures a ComponentStep at construction.
type StepOption func(*ComponentStep)

// WithLabel overrides the default "<op> <component>" label.
func WithLabel(label string) StepOption {
	return func(s *ComponentStep) {
		s.label = label
	}
}

// WithErrorMessage sets the message attached to a failure of the step.
func WithErrorMessage(msg string) StepOption {
	return func(s *ComponentStep) {
		s.errorMessage = msg
	}
}

// WithTimeout bounds the target's operation. A timeout is a step failure.
func WithTimeout(d time.Duration) StepOption {
	return func(s *ComponentStep) {
		s.timeout = d
	}
}

// ComponentStep applies one operation to a target component on behalf of an
// owner. It is immutable once built.
type ComponentStep struct {
	owner        Owner
	target       Component
	op           Operation
	required     bool
	label        string
	errorMessage string
	timeout      time.Duration
}

// NewComponentStep builds a step. Stop and terminate steps are never required.
func NewComponentStep(op Operation, owner Owner, target Component, required bool, opts ...StepOption) *ComponentStep {
	s := &ComponentStep{
		owner:    owner,
		target:   target,
		op:       op,
		required: required && !op.lenient(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.label == "" {
		name := "<nil>"
		if !isNil(target) {
			name = target.Name()
		}
		s.label = fmt.Sprintf("%s %s", op, name)
	}
	if s.errorMessage == "" && !isNil(target) {
		s.errorMessage = defaultErrorMessage(op, target.Name())
	}
	return s
}

// NewInitializeStep builds a step that initializes target.
func NewInitializeStep(owner Owner, target Component, required bool, opts ...StepOption) *ComponentStep {
	return NewComponentStep(OpInitialize, owner, target, required, opts...)
}

// NewStartStep builds a step that starts target.
func NewStartStep(owner Owner, target Component, required bool, opts ...StepOption) *ComponentStep {
	return NewComponentStep(OpStart, owner, target, required, opts...)
}

// NewStopStep builds a best-effort step that stops target.
func NewStopStep(owner Owner, target Component, opts ...StepOption) *ComponentStep {
	return NewComponentStep(OpStop, owner, target, false, opts...)
}

// NewTerminateStep builds a best-effort step that terminates target.
func NewTerminateStep(owner Owner, target Component, opts ...StepOption) *ComponentStep {
	return NewComponentStep(OpTerminate, owner, target, false, opts...)
}

func (s *ComponentStep) Label() string          { return s.label }
func (s *ComponentStep) Required() bool         { return s.required }
func (s *ComponentStep) Operation() Operation   { return s.op }
func (s *ComponentStep) Target() Component      { return s.target }
func (s *ComponentStep) ErrorMessage() string   { return s.errorMessage }
func (s *ComponentStep) Timeout() time.Duration { return s.timeout }

// Execute delegates to the owner's nested operation for the target.
// A nil target or owner fails before anything is touched.
func (s *ComponentStep) Execute(ctx context.Context, m *Monitor) error {
	if isNil(s.target) {
		return &UsageError{Op: s.op, Step: s.label, Err: ErrNilTarget}
	}
	if isNil(s.owner) {
		return &UsageError{Op: s.op, Step: s.label, Err: ErrNilOwner}
	}

	opts := ChildOptions{
		Step:         s.label,
		ErrorMessage: s.errorMessage,
		Required:     s.required,
		Timeout:      s.timeout,
	}
	switch s.op {
	case OpInitialize:
		return s.owner.InitializeChild(ctx, s.target, m, opts)
	case OpStart:
		return s.owner.StartChild(ctx, s.target, m, opts)
	case OpStop:
		return s.owner.StopChild(ctx, s.target, m, opts)
	default:
		return s.owner.TerminateChild(ctx, s.target, m, opts)
	}
}

// funcStep is a Step backed by a function.
type funcStep struct {
	label    string
	required bool
	fn       func(ctx context.Context, m *Monitor) error
}

// NewStep wraps fn as a Step, for work that is not a component operation.
func NewStep(label string, required bool, fn func(ctx context.Context, m *Monitor) error) Step {
	return &funcStep{label: label, required: required, fn: fn}
}

func (s *funcStep) Label() string  { return s.label }
func (s *funcStep) Required() bool { return s.required }

func (s *funcStep) Execute(ctx context.Context, m *Monitor) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, m)
}
