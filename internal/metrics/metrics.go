// Package metrics exposes lifecycle progress and component state to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/stagehand/pkg/lifecycle"
)

const namespace = "stagehand"

// Collector records lifecycle activity. It is a lifecycle.ProgressListener
// (step durations and failures) and a lifecycle.StateListener (component state).
type Collector struct {
	stepDuration *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	state        *prometheus.GaugeVec
}

// NewCollector creates a collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "step_duration_seconds",
				Help:      "Duration of lifecycle steps.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"operation", "step", "outcome"},
		),
		stepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "step_failures_total",
				Help:      "Total number of failed lifecycle steps, including absorbed ones.",
			},
			[]string{"operation", "step"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Total number of component state transitions.",
			},
			[]string{"component", "state"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "component_state",
				Help:      "Current lifecycle state of each component (1 for the current state).",
			},
			[]string{"component", "state"},
		),
	}

	for _, col := range []prometheus.Collector{c.stepDuration, c.stepFailures, c.transitions, c.state} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OnProgress implements lifecycle.ProgressListener.
func (c *Collector) OnProgress(ev lifecycle.ProgressEvent) {
	if ev.Kind != lifecycle.EventEnd {
		return
	}
	outcome := "success"
	if ev.Err != nil {
		outcome = "failure"
		c.stepFailures.WithLabelValues(ev.Operation, ev.Label).Inc()
	}
	c.stepDuration.WithLabelValues(ev.Operation, ev.Label, outcome).Observe(ev.Duration.Seconds())
}

// OnStateChange implements lifecycle.StateListener.
func (c *Collector) OnStateChange(component string, previous, current lifecycle.State, reason string) {
	c.transitions.WithLabelValues(component, current.String()).Inc()
	for _, s := range lifecycle.States() {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(component, s.String()).Set(v)
	}
}

var (
	_ lifecycle.ProgressListener = (*Collector)(nil)
	_ lifecycle.StateListener    = (*Collector)(nil)
)
