package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// deviceService owns six children and starts them through a single plan.
type deviceService struct {
	*Base
	rec   *recorder
	parts map[string]*fakeComponent
	plan  *Composite
}

func newDeviceService(rec *recorder, required map[string]bool) *deviceService {
	s := &deviceService{rec: rec, parts: make(map[string]*fakeComponent)}
	s.Base = NewBase("device-service", Hooks{
		Start: func(ctx context.Context, m *Monitor) error {
			return s.plan.Execute(ctx, m)
		},
	})

	s.plan = NewComposite("Start " + s.Name())
	for _, name := range []string{"tenant consumer", "cache", "metrics exporter", "RPC server", "event publisher", "device channel"} {
		f := newFake(name, rec)
		s.parts[name] = f
		s.plan.AddStartStep(s.Base, f, required[name])
	}
	return s
}

// initialize brings every child and the service to Initialized, then clears the recorder.
func (s *deviceService) initialize(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, f := range s.parts {
		if err := f.Initialize(ctx, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Initialize(ctx, nil); err != nil {
		t.Fatal(err)
	}
	s.rec.mu.Lock()
	s.rec.calls = nil
	s.rec.mu.Unlock()
}

func TestScenario_RequiredCacheFailureAbortsStart(t *testing.T) {
	rec := &recorder{}
	s := newDeviceService(rec, map[string]bool{
		"tenant consumer": true, "cache": true, "RPC server": true, "device channel": true,
	})
	s.initialize(t)
	s.parts["cache"].startErr = errNetworkUnavailable

	err := s.Start(context.Background(), NewMonitor("Start device-service"))

	if err == nil {
		t.Fatal("Start() = nil, want failure")
	}
	if !strings.HasPrefix(err.Error(), "Start device-service") {
		t.Errorf("error = %q, want it attributed to Start device-service", err)
	}
	if !errors.Is(err, errNetworkUnavailable) {
		t.Errorf("error = %v, want cache cause attached", err)
	}
	for _, c := range rec.Calls() {
		if c == "start RPC server" {
			t.Error("start RPC server ran after required cache failure")
		}
	}
	if s.State() != StateError {
		t.Errorf("service state = %v, want Error", s.State())
	}
	if got := s.ChildStates()["cache"]; got != StateError {
		t.Errorf("recorded cache state = %v, want Error", got)
	}
	if got := s.ChildStates()["tenant consumer"]; got != StateStarted {
		t.Errorf("recorded tenant consumer state = %v, want Started", got)
	}
}

func TestScenario_OptionalExporterFailureIsAbsorbed(t *testing.T) {
	rec := &recorder{}
	s := newDeviceService(rec, map[string]bool{
		"tenant consumer": true, "cache": true, "RPC server": true, "device channel": true,
	})
	s.initialize(t)
	s.parts["metrics exporter"].startErr = errors.New("port in use")

	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start() error = %v, want success", err)
	}
	if s.State() != StateStarted {
		t.Errorf("service state = %v, want Started", s.State())
	}

	want := []string{
		"start tenant consumer", "start cache", "start metrics exporter",
		"start RPC server", "start event publisher", "start device channel",
	}
	if got := rec.Calls(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if s.parts["metrics exporter"].State() != StateError {
		t.Errorf("exporter state = %v, want Error", s.parts["metrics exporter"].State())
	}
}
