package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/stagehand/pkg/lifecycle"
)

func TestCollector_Progress(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	m := lifecycle.NewMonitor("Start device-service", c)
	m.Begin("start cache", 0, 2)
	m.End(nil)
	m.Begin("start metrics exporter", 1, 2)
	m.End(errors.New("port in use"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepFailures.WithLabelValues("Start device-service", "start metrics exporter")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.stepFailures.WithLabelValues("Start device-service", "start cache")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.stepDuration))
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestCollector_StateGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	comp := lifecycle.NewBase("cache", lifecycle.Hooks{}, lifecycle.WithStateListener(c))
	ctx := context.Background()
	require.NoError(t, comp.Initialize(ctx, nil))
	require.NoError(t, comp.Start(ctx, nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("cache", "Started")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.state.WithLabelValues("cache", "Initialized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("cache", "Starting")))
	assert.Equal(t, len(lifecycle.States()), testutil.CollectAndCount(c.state))
}

func TestExporter_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.OnStateChange("rpc-server", lifecycle.StateStarting, lifecycle.StateStarted, "start completed")

	e := NewExporter(ExporterConfig{Addr: "127.0.0.1:0", Gatherer: reg})
	ctx := context.Background()
	require.NoError(t, e.Initialize(ctx, nil))
	require.NoError(t, e.Start(ctx, nil))
	t.Cleanup(func() { _ = e.Stop(context.Background(), nil) })

	resp, err := http.Get("http://" + e.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `stagehand_lifecycle_component_state{component="rpc-server",state="Started"} 1`), string(body))

	require.NoError(t, e.Stop(ctx, nil))
	assert.Nil(t, e.Addr())
}

func TestExporter_InitializeValidates(t *testing.T) {
	e := NewExporter(ExporterConfig{Addr: "127.0.0.1:0"})
	assert.Error(t, e.Initialize(context.Background(), nil))

	e = NewExporter(ExporterConfig{Gatherer: prometheus.NewRegistry()})
	assert.Error(t, e.Initialize(context.Background(), nil))
}
