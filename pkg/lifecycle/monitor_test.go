package lifecycle

import (
	"errors"
	"testing"
	"time"
)

func TestMonitor_NilIsSafe(t *testing.T) {
	var m *Monitor

	m.Begin("start cache", 0, 1)
	m.End(nil)
	if m.Level() != 0 || m.ID() != "" || m.Operation() != "" || m.Frames() != nil {
		t.Error("nil monitor should report zero values")
	}
	if _, ok := m.Current(); ok {
		t.Error("nil monitor should have no current frame")
	}
}

func TestMonitor_BeginEnd(t *testing.T) {
	var events []ProgressEvent
	m := NewMonitor("Start devices", ProgressListenerFunc(func(ev ProgressEvent) {
		events = append(events, ev)
	}))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	if m.ID() == "" {
		t.Error("ID() should be set")
	}
	if other := NewMonitor("Start devices"); other.ID() == m.ID() {
		t.Error("monitor IDs should be unique")
	}

	m.Begin("Start channels", 0, 2)
	m.Begin("start devices", 1, 3)

	if m.Level() != 2 {
		t.Fatalf("Level() = %d, want 2", m.Level())
	}
	cur, ok := m.Current()
	if !ok || cur.Label != "start devices" || cur.Index != 1 || cur.Total != 3 {
		t.Errorf("Current() = %+v, %v", cur, ok)
	}
	frames := m.Frames()
	if len(frames) != 2 || frames[0].Label != "Start channels" {
		t.Errorf("Frames() = %+v", frames)
	}

	boom := errors.New("boom")
	m.End(boom)
	m.End(nil)
	m.End(nil) // unbalanced End is ignored

	if m.Level() != 0 {
		t.Errorf("Level() = %d after End, want 0", m.Level())
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}

	inner := events[2]
	if inner.Kind != EventEnd || inner.Label != "start devices" || inner.Level != 2 {
		t.Errorf("inner end event = %+v", inner)
	}
	if inner.Err != boom {
		t.Errorf("inner end Err = %v, want boom", inner.Err)
	}
	if inner.Duration != time.Second {
		t.Errorf("inner Duration = %v, want 1s", inner.Duration)
	}
	if len(inner.Path) != 1 || inner.Path[0] != "Start channels" {
		t.Errorf("inner Path = %v", inner.Path)
	}
	if inner.Operation != "Start devices" || inner.MonitorID != m.ID() {
		t.Errorf("event not attributed to monitor: %+v", inner)
	}

	outer := events[3]
	if outer.Level != 1 || len(outer.Path) != 0 || outer.Duration != 3*time.Second {
		t.Errorf("outer end event = %+v", outer)
	}
}

func TestEventKind_String(t *testing.T) {
	if EventBegin.String() != "begin" || EventEnd.String() != "end" {
		t.Errorf("EventKind strings = %q, %q", EventBegin, EventEnd)
	}
}
