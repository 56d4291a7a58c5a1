package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/stagehand/pkg/lifecycle"
	"github.com/bft-labs/stagehand/pkg/log"
)

// ExporterConfig configures an Exporter.
type ExporterConfig struct {
	Name string
	Addr string

	// Gatherer is scraped on /metrics.
	Gatherer prometheus.Gatherer

	ShutdownTimeout time.Duration
	Logger          log.Logger
}

// Exporter serves /metrics over HTTP as a lifecycle component.
type Exporter struct {
	*lifecycle.Base
	cfg ExporterConfig

	mu  sync.Mutex
	srv *http.Server
	lis net.Listener
}

// NewExporter creates an exporter component.
func NewExporter(cfg ExporterConfig, opts ...lifecycle.Option) *Exporter {
	if cfg.Name == "" {
		cfg.Name = "metrics exporter"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	e := &Exporter{cfg: cfg}
	opts = append([]lifecycle.Option{lifecycle.WithLogger(cfg.Logger)}, opts...)
	e.Base = lifecycle.NewBase(cfg.Name, lifecycle.Hooks{
		Initialize: e.initialize,
		Start:      e.start,
		Stop:       e.stop,
		Terminate:  e.stop,
	}, opts...)
	return e
}

// Addr returns the bound address, or nil when not serving.
func (e *Exporter) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lis == nil {
		return nil
	}
	return e.lis.Addr()
}

func (e *Exporter) initialize(context.Context, *lifecycle.Monitor) error {
	if e.cfg.Addr == "" {
		return errors.New("metrics address is required")
	}
	if e.cfg.Gatherer == nil {
		return errors.New("metrics gatherer is required")
	}
	return nil
}

func (e *Exporter) start(ctx context.Context, _ *lifecycle.Monitor) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", e.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", e.cfg.Addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.cfg.Gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	e.mu.Lock()
	e.srv, e.lis = srv, lis
	e.mu.Unlock()

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger().Error("metrics server error", log.Err(err))
		}
	}()

	e.Logger().Info("metrics exporter listening", log.String("addr", lis.Addr().String()))
	return nil
}

func (e *Exporter) stop(ctx context.Context, _ *lifecycle.Monitor) error {
	e.mu.Lock()
	srv := e.srv
	e.srv, e.lis = nil, nil
	e.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

var _ lifecycle.Component = (*Exporter)(nil)
