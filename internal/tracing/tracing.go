// Package tracing turns lifecycle progress into OpenTelemetry spans.
//
// Each lifecycle operation becomes a root span and every step a child of the
// step that encloses it, so a nested plan shows up as a span tree.
package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bft-labs/stagehand/pkg/lifecycle"
)

const instrumentationName = "github.com/bft-labs/stagehand/pkg/lifecycle"

type spanFrame struct {
	ctx  context.Context
	span trace.Span
}

// SpanListener is a lifecycle.ProgressListener emitting one span per step.
type SpanListener struct {
	tracer trace.Tracer

	mu     sync.Mutex
	roots  map[string]context.Context
	stacks map[string][]spanFrame
}

// NewSpanListener creates a listener. A nil provider uses the global one.
func NewSpanListener(tp trace.TracerProvider) *SpanListener {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &SpanListener{
		tracer: tp.Tracer(instrumentationName),
		roots:  make(map[string]context.Context),
		stacks: make(map[string][]spanFrame),
	}
}

// Trace opens the root span for the operation tracked by m. Step spans
// reported through m become its descendants. The returned function ends the
// root span, recording err.
func (l *SpanListener) Trace(ctx context.Context, m *lifecycle.Monitor) (context.Context, func(error)) {
	ctx, span := l.tracer.Start(ctx, m.Operation(),
		trace.WithAttributes(
			attribute.String("stagehand.monitor_id", m.ID()),
		),
	)

	l.mu.Lock()
	l.roots[m.ID()] = ctx
	l.mu.Unlock()

	return ctx, func(err error) {
		finish(span, err)
		l.mu.Lock()
		delete(l.roots, m.ID())
		delete(l.stacks, m.ID())
		l.mu.Unlock()
	}
}

// OnProgress implements lifecycle.ProgressListener.
func (l *SpanListener) OnProgress(ev lifecycle.ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stack := l.stacks[ev.MonitorID]
	switch ev.Kind {
	case lifecycle.EventBegin:
		parent, ok := l.roots[ev.MonitorID]
		if len(stack) > 0 {
			parent, ok = stack[len(stack)-1].ctx, true
		}
		if !ok {
			parent = context.Background()
		}
		ctx, span := l.tracer.Start(parent, ev.Label,
			trace.WithAttributes(
				attribute.String("stagehand.operation", ev.Operation),
				attribute.Int("stagehand.step.index", ev.Index),
				attribute.Int("stagehand.step.total", ev.Total),
				attribute.Int("stagehand.step.level", ev.Level),
			),
		)
		l.stacks[ev.MonitorID] = append(stack, spanFrame{ctx: ctx, span: span})

	case lifecycle.EventEnd:
		if len(stack) == 0 {
			return
		}
		top := stack[len(stack)-1]
		if len(stack) == 1 {
			delete(l.stacks, ev.MonitorID)
		} else {
			l.stacks[ev.MonitorID] = stack[:len(stack)-1]
		}
		finish(top.span, ev.Err)
	}
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

var _ lifecycle.ProgressListener = (*SpanListener)(nil)
