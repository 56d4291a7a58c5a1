package lifecycle

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is one level of in-flight progress.
type Frame struct {
	Label   string
	Index   int
	Total   int
	Started time.Time
}

// EventKind distinguishes the two progress notifications.
type EventKind int

const (
	EventBegin EventKind = iota
	EventEnd
)

func (k EventKind) String() string {
	if k == EventBegin {
		return "begin"
	}
	return "end"
}

// ProgressEvent is delivered to listeners when a step begins or ends.
type ProgressEvent struct {
	MonitorID string
	Operation string
	Kind      EventKind

	// Level is the nesting depth of the step, starting at 1.
	Level int
	// Path holds the labels of the enclosing frames, outermost first.
	Path  []string
	Label string
	Index int
	Total int

	// Duration and Err are set on EventEnd.
	Duration time.Duration
	Err      error
}

// ProgressListener observes a Monitor.
type ProgressListener interface {
	OnProgress(ev ProgressEvent)
}

// ProgressListenerFunc adapts a function to ProgressListener.
type ProgressListenerFunc func(ev ProgressEvent)

// OnProgress calls f.
func (f ProgressListenerFunc) OnProgress(ev ProgressEvent) { f(ev) }

// Monitor tracks hierarchical progress of one lifecycle operation.
// It is used for reporting only. A nil *Monitor is valid and records nothing.
type Monitor struct {
	mu        sync.Mutex
	id        string
	operation string
	frames    []Frame
	listeners []ProgressListener
	now       func() time.Time
}

// NewMonitor creates a monitor for the named operation (e.g. "Start devices").
func NewMonitor(operation string, listeners ...ProgressListener) *Monitor {
	return &Monitor{
		id:        uuid.NewString(),
		operation: operation,
		listeners: listeners,
		now:       time.Now,
	}
}

// ID returns a unique identifier for this operation.
func (m *Monitor) ID() string {
	if m == nil {
		return ""
	}
	return m.id
}

// Operation returns the operation name given to NewMonitor.
func (m *Monitor) Operation() string {
	if m == nil {
		return ""
	}
	return m.operation
}

// Level returns the current nesting depth.
func (m *Monitor) Level() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// Frames returns a copy of the frame stack, outermost first.
func (m *Monitor) Frames() []Frame {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Frame(nil), m.frames...)
}

// Current returns the innermost frame.
func (m *Monitor) Current() (Frame, bool) {
	if m == nil {
		return Frame{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		return Frame{}, false
	}
	return m.frames[len(m.frames)-1], true
}

// Begin pushes a frame for step index of total.
func (m *Monitor) Begin(label string, index, total int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	path := m.pathLocked()
	m.frames = append(m.frames, Frame{Label: label, Index: index, Total: total, Started: m.now()})
	ev := ProgressEvent{
		MonitorID: m.id,
		Operation: m.operation,
		Kind:      EventBegin,
		Level:     len(m.frames),
		Path:      path,
		Label:     label,
		Index:     index,
		Total:     total,
	}
	listeners := m.listeners
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnProgress(ev)
	}
}

// End pops the innermost frame, recording the step outcome.
func (m *Monitor) End(err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if len(m.frames) == 0 {
		m.mu.Unlock()
		return
	}
	level := len(m.frames)
	f := m.frames[level-1]
	m.frames = m.frames[:level-1]
	ev := ProgressEvent{
		MonitorID: m.id,
		Operation: m.operation,
		Kind:      EventEnd,
		Level:     level,
		Path:      m.pathLocked(),
		Label:     f.Label,
		Index:     f.Index,
		Total:     f.Total,
		Duration:  m.now().Sub(f.Started),
		Err:       err,
	}
	listeners := m.listeners
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnProgress(ev)
	}
}

func (m *Monitor) pathLocked() []string {
	path := make([]string, len(m.frames))
	for i, f := range m.frames {
		path[i] = f.Label
	}
	return path
}
