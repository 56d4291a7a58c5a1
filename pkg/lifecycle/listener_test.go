package lifecycle

import (
	"errors"
	"sync"
	"testing"

	"github.com/bft-labs/stagehand/pkg/log"
)

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

// captureLogger records every entry for assertions.
type captureLogger struct {
	mu      sync.Mutex
	entries *[]logEntry
	base    []log.Field
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{entries: &[]logEntry{}}
}

func (c *captureLogger) record(level, msg string, fields []log.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]interface{})
	for _, f := range append(append([]log.Field{}, c.base...), fields...) {
		m[f.Key] = f.Value
	}
	*c.entries = append(*c.entries, logEntry{level, msg, m})
}

func (c *captureLogger) Debug(msg string, fields ...log.Field) { c.record("debug", msg, fields) }
func (c *captureLogger) Info(msg string, fields ...log.Field)  { c.record("info", msg, fields) }
func (c *captureLogger) Warn(msg string, fields ...log.Field)  { c.record("warn", msg, fields) }
func (c *captureLogger) Error(msg string, fields ...log.Field) { c.record("error", msg, fields) }

func (c *captureLogger) With(fields ...log.Field) log.Logger {
	return &captureLogger{entries: c.entries, base: append(append([]log.Field{}, c.base...), fields...)}
}

func (c *captureLogger) Entries() []logEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]logEntry{}, *c.entries...)
}

func TestLogListener(t *testing.T) {
	logger := newCaptureLogger()
	m := NewMonitor("Start service", NewLogListener(logger))

	m.Begin("Start channels", 0, 1)
	m.Begin("start devices", 0, 2)
	m.End(errors.New("refused"))
	m.End(nil)

	entries := logger.Entries()
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}

	tests := []struct {
		level, msg, step string
	}{
		{"debug", "step started", "Start channels"},
		{"debug", "step started", "start devices"},
		{"warn", "step failed", "start devices"},
		{"debug", "step completed", "Start channels"},
	}
	for i, tt := range tests {
		e := entries[i]
		if e.level != tt.level || e.msg != tt.msg || e.fields["step"] != tt.step {
			t.Errorf("entry %d = %s %q step=%v, want %s %q step=%s", i, e.level, e.msg, e.fields["step"], tt.level, tt.msg, tt.step)
		}
	}
	if got := entries[2].fields["within"]; got != "Start channels" {
		t.Errorf("within = %v, want Start channels", got)
	}
	if got := entries[1].fields["progress"]; got != "1/2" {
		t.Errorf("progress = %v, want 1/2", got)
	}
	if _, ok := entries[2].fields["error"]; !ok {
		t.Error("failure entry missing error field")
	}
}
