package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/bft-labs/stagehand/pkg/log"
)

// CompositeStatus is the execution state of a Composite.
type CompositeStatus int

const (
	CompositeNotStarted CompositeStatus = iota
	CompositeRunning
	CompositeCompleted
	CompositeAborted
)

func (s CompositeStatus) String() string {
	switch s {
	case CompositeNotStarted:
		return "NotStarted"
	case CompositeRunning:
		return "Running"
	case CompositeCompleted:
		return "Completed"
	case CompositeAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// CompositeOption configures a Composite.
type CompositeOption func(*Composite)

// WithCompositeLogger sets the logger for absorbed failures.
func WithCompositeLogger(logger log.Logger) CompositeOption {
	return func(c *Composite) {
		c.logger = log.OrNoop(logger)
	}
}

// Optional marks a nested composite as optional within its parent.
func Optional() CompositeOption {
	return func(c *Composite) {
		c.required = false
	}
}

// Composite is an ordered group of steps executed as one unit. Insertion
// order is execution order. A Composite is itself a Step, so composites nest
// and run as a flattened depth-first sequence.
type Composite struct {
	label      string
	steps      []Step
	bestEffort bool
	required   bool
	logger     log.Logger

	mu     sync.RWMutex
	status CompositeStatus
}

// NewComposite creates a composite that aborts on the first required failure.
func NewComposite(label string, opts ...CompositeOption) *Composite {
	c := &Composite{
		label:    label,
		required: true,
		logger:   log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewStopComposite creates a best-effort composite: every failure is logged and
// the sequence always runs to completion.
func NewStopComposite(label string, opts ...CompositeOption) *Composite {
	c := NewComposite(label, opts...)
	c.bestEffort = true
	return c
}

func (c *Composite) Label() string    { return c.label }
func (c *Composite) Required() bool   { return c.required }
func (c *Composite) BestEffort() bool { return c.bestEffort }
func (c *Composite) Len() int         { return len(c.steps) }

// Steps returns the member steps in execution order.
func (c *Composite) Steps() []Step {
	return append([]Step(nil), c.steps...)
}

// Status returns the execution status of the last Execute.
func (c *Composite) Status() CompositeStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Add appends a step.
func (c *Composite) Add(step Step) *Composite {
	c.steps = append(c.steps, step)
	return c
}

// AddInitializeStep appends a step initializing target on behalf of owner.
func (c *Composite) AddInitializeStep(owner Owner, target Component, required bool, opts ...StepOption) *Composite {
	return c.Add(NewInitializeStep(owner, target, required, opts...))
}

// AddStartStep appends a step starting target on behalf of owner.
func (c *Composite) AddStartStep(owner Owner, target Component, required bool, opts ...StepOption) *Composite {
	return c.Add(NewStartStep(owner, target, required, opts...))
}

// AddStopStep appends a best-effort step stopping target on behalf of owner.
func (c *Composite) AddStopStep(owner Owner, target Component, opts ...StepOption) *Composite {
	return c.Add(NewStopStep(owner, target, opts...))
}

// AddTerminateStep appends a best-effort step terminating target on behalf of owner.
func (c *Composite) AddTerminateStep(owner Owner, target Component, opts ...StepOption) *Composite {
	return c.Add(NewTerminateStep(owner, target, opts...))
}

// Execute runs every step once, in order. A required failure stops the
// sequence and is returned with this composite's label prepended to its
// path. Optional failures are logged and skipped. Best-effort composites
// never return an error.
func (c *Composite) Execute(ctx context.Context, m *Monitor) error {
	c.setStatus(CompositeRunning)

	total := len(c.steps)
	for i, step := range c.steps {
		if !c.bestEffort && ctx.Err() != nil {
			c.setStatus(CompositeAborted)
			return c.annotate(step, ctx.Err())
		}

		m.Begin(step.Label(), i, total)
		err := step.Execute(ctx, m)
		m.End(err)

		if err == nil {
			continue
		}

		fields := []log.Field{
			log.String("sequence", c.label),
			log.Step(step.Label()),
			log.Err(err),
		}
		if c.bestEffort {
			if IsUsage(err) {
				c.logger.Error("misconfigured step in best-effort sequence, continuing", fields...)
			} else {
				c.logger.Warn("step failed in best-effort sequence, continuing", fields...)
			}
			continue
		}
		if !step.Required() && !IsUsage(err) {
			c.logger.Warn("optional step failed, continuing", fields...)
			continue
		}

		c.setStatus(CompositeAborted)
		return c.annotate(step, err)
	}

	c.setStatus(CompositeCompleted)
	return nil
}

// annotate records where err happened without wrapping an existing StepError.
func (c *Composite) annotate(step Step, err error) error {
	var se *StepError
	if !errors.As(err, &se) {
		se = &StepError{Step: step.Label(), Required: step.Required(), Err: err}
		err = se
	}
	se.prepend(step.Label())
	se.prepend(c.label)
	return err
}

func (c *Composite) setStatus(s CompositeStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

var (
	_ Step = (*Composite)(nil)
	_ Step = (*ComponentStep)(nil)
)
