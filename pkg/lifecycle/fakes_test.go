package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recorder collects the order in which fake components were driven.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

// fakeComponent is a Base whose hooks record calls and can be told to fail.
type fakeComponent struct {
	*Base
	rec *recorder

	initErr  error
	startErr error
	stopErr  error
	termErr  error
	block    chan struct{}
}

func newFake(name string, rec *recorder) *fakeComponent {
	f := &fakeComponent{rec: rec}
	f.Base = NewBase(name, Hooks{
		Initialize: func(ctx context.Context, m *Monitor) error {
			f.rec.add("initialize " + name)
			return f.initErr
		},
		Start: func(ctx context.Context, m *Monitor) error {
			f.rec.add("start " + name)
			if f.block != nil {
				select {
				case <-f.block:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return f.startErr
		},
		Stop: func(ctx context.Context, m *Monitor) error {
			f.rec.add("stop " + name)
			return f.stopErr
		},
		Terminate: func(ctx context.Context, m *Monitor) error {
			f.rec.add("terminate " + name)
			return f.termErr
		},
	})
	return f
}

// initialized returns a fake that has already completed Initialize.
func initialized(name string, rec *recorder) *fakeComponent {
	f := newFake(name, rec)
	if err := f.Initialize(context.Background(), nil); err != nil {
		panic(err)
	}
	rec.mu.Lock()
	rec.calls = nil
	rec.mu.Unlock()
	return f
}

// stateEvent is a captured state change.
type stateEvent struct {
	component string
	previous  State
	current   State
	reason    string
}

type stateRecorder struct {
	mu     sync.Mutex
	events []stateEvent
}

func (s *stateRecorder) OnStateChange(component string, previous, current State, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, stateEvent{component, previous, current, reason})
}

func (s *stateRecorder) Events() []stateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stateEvent{}, s.events...)
}

var errNetworkUnavailable = errors.New("network unavailable")

func equalCalls(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// stubbornComponent ignores ctx in its start hook and holds a resource until
// its stop or terminate hook releases it.
type stubbornComponent struct {
	*Base
	release  chan struct{}
	acquired atomic.Bool
	released atomic.Bool
}

func newStubborn(name string) *stubbornComponent {
	c := &stubbornComponent{release: make(chan struct{})}
	free := func(ctx context.Context, m *Monitor) error {
		if c.acquired.Load() {
			c.released.Store(true)
		}
		return nil
	}
	c.Base = NewBase(name, Hooks{
		Start: func(ctx context.Context, m *Monitor) error {
			<-c.release
			c.acquired.Store(true)
			return nil
		},
		Stop:      free,
		Terminate: free,
	})
	if err := c.Initialize(context.Background(), nil); err != nil {
		panic(err)
	}
	return c
}
