package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Common lifecycle errors.
var (
	// ErrUsage matches every *UsageError via errors.Is.
	ErrUsage = errors.New("lifecycle: usage error")

	// ErrNilTarget is returned when a step has no component to operate on.
	ErrNilTarget = errors.New("lifecycle: step target is nil")

	// ErrNilOwner is returned when a component step has no owner to delegate to.
	ErrNilOwner = errors.New("lifecycle: step owner is nil")

	// ErrNotInitialized is returned when Start is called before a successful Initialize.
	ErrNotInitialized = errors.New("lifecycle: component not initialized")

	// ErrAlreadyStarted is returned when Start is called on a started component.
	ErrAlreadyStarted = errors.New("lifecycle: component already started")

	// ErrTerminated is returned when an operation is invoked after Terminate.
	ErrTerminated = errors.New("lifecycle: component terminated")

	// ErrInvalidTransition is returned when a state change is not allowed.
	ErrInvalidTransition = errors.New("lifecycle: invalid state transition")

	// ErrStepTimeout is the cause recorded when a child exceeds its step timeout.
	ErrStepTimeout = errors.New("lifecycle: step timed out")

	// ErrInProgress is returned when an operation is invoked while an earlier
	// initialize or start is still running.
	ErrInProgress = errors.New("lifecycle: operation in progress")
)

// UsageError reports a lifecycle method invoked out of order or a step built
// without a required reference. It is fatal to the step that raised it.
type UsageError struct {
	Op        Operation
	Component string
	Step      string
	Err       error
}

func (e *UsageError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s step %q: %v", e.Op, e.Step, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Component, e.Err)
}

func (e *UsageError) Unwrap() error { return e.Err }

// Is makes every UsageError match ErrUsage.
func (e *UsageError) Is(target error) bool { return target == ErrUsage }

// IsUsage reports whether err is, or wraps, a UsageError.
func IsUsage(err error) bool {
	return errors.Is(err, ErrUsage)
}

// StepError is a failure detected while executing a step. It is created once,
// where the failure is detected. Enclosing composites add their labels to
// Path rather than wrapping it again.
type StepError struct {
	Path     []string
	Step     string
	Message  string
	Required bool
	Err      error
}

func (e *StepError) Error() string {
	parts := make([]string, 0, len(e.Path)+3)
	parts = append(parts, e.Path...)
	if e.Step != "" {
		parts = append(parts, e.Step)
	}
	if e.Message != "" && e.Message != e.Step {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *StepError) Unwrap() error { return e.Err }

// prepend adds label in front of the path unless it is already the nearest label.
func (e *StepError) prepend(label string) {
	if label == "" {
		return
	}
	if len(e.Path) > 0 && e.Path[0] == label {
		return
	}
	if len(e.Path) == 0 && e.Step == label {
		return
	}
	e.Path = append([]string{label}, e.Path...)
}
