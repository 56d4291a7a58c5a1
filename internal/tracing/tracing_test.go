package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bft-labs/stagehand/pkg/lifecycle"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	return sr, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
}

func byName(spans []sdktrace.ReadOnlySpan) map[string]sdktrace.ReadOnlySpan {
	out := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, s := range spans {
		out[s.Name()] = s
	}
	return out
}

func TestSpanListener_NestedPlan(t *testing.T) {
	sr, tp := newRecorder()
	l := NewSpanListener(tp)
	owner := lifecycle.NewBase("device-service", lifecycle.Hooks{})

	inner := lifecycle.NewComposite("Start channels").
		Add(lifecycle.NewStep("start devices", true, func(context.Context, *lifecycle.Monitor) error { return nil }))
	plan := lifecycle.NewComposite("Start device-service").
		AddInitializeStep(owner, lifecycle.NewBase("cache", lifecycle.Hooks{}), true).
		Add(inner)

	m := lifecycle.NewMonitor("Start device-service", l)
	ctx, end := l.Trace(context.Background(), m)
	err := plan.Execute(ctx, m)
	end(err)
	require.NoError(t, err)

	spans := byName(sr.Ended())
	require.Len(t, spans, 4)

	root := spans["Start device-service"]
	require.NotNil(t, root)
	assert.False(t, root.Parent().IsValid())

	assert.Equal(t, root.SpanContext().SpanID(), spans["initialize cache"].Parent().SpanID())
	assert.Equal(t, root.SpanContext().SpanID(), spans["Start channels"].Parent().SpanID())
	assert.Equal(t, spans["Start channels"].SpanContext().SpanID(), spans["start devices"].Parent().SpanID())
	assert.Equal(t, codes.Ok, spans["start devices"].Status().Code)
}

func TestSpanListener_FailureStatus(t *testing.T) {
	sr, tp := newRecorder()
	l := NewSpanListener(tp)
	boom := errors.New("network unavailable")

	plan := lifecycle.NewComposite("Start device-service").
		Add(lifecycle.NewStep("start cache", true, func(context.Context, *lifecycle.Monitor) error { return boom }))

	m := lifecycle.NewMonitor("Start device-service", l)
	ctx, end := l.Trace(context.Background(), m)
	err := plan.Execute(ctx, m)
	end(err)
	require.Error(t, err)

	spans := byName(sr.Ended())
	step := spans["start cache"]
	require.NotNil(t, step)
	assert.Equal(t, codes.Error, step.Status().Code)
	assert.Equal(t, "network unavailable", step.Status().Description)
	require.Len(t, step.Events(), 1, "error should be recorded as an event")
	assert.Equal(t, codes.Error, spans["Start device-service"].Status().Code)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.roots)
	assert.Empty(t, l.stacks)
}

func TestSpanListener_WithoutRoot(t *testing.T) {
	sr, tp := newRecorder()
	l := NewSpanListener(tp)

	m := lifecycle.NewMonitor("Stop device-service", l)
	m.Begin("stop cache", 0, 1)
	m.End(nil)
	m.End(nil) // unbalanced

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.False(t, spans[0].Parent().IsValid())
}
