// Package service is the composition root. It builds every component from
// the configuration and declares the order in which they are initialized,
// started, stopped and terminated.
package service

import (
	"context"
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/bft-labs/stagehand/internal/cache"
	"github.com/bft-labs/stagehand/internal/config"
	"github.com/bft-labs/stagehand/internal/configwatch"
	"github.com/bft-labs/stagehand/internal/metrics"
	"github.com/bft-labs/stagehand/internal/rpcserver"
	"github.com/bft-labs/stagehand/internal/tracing"
	"github.com/bft-labs/stagehand/pkg/lifecycle"
	"github.com/bft-labs/stagehand/pkg/log"
	"github.com/bft-labs/stagehand/pkg/rpc/auth"
)

// Option configures a Service.
type Option func(*options)

type options struct {
	logger         log.Logger
	registry       *prometheus.Registry
	tracerProvider trace.TracerProvider
	listeners      []lifecycle.ProgressListener
	services       []rpcserver.Registrar
	rpcListener    net.Listener
}

// WithLogger sets the root logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry sets the Prometheus registry. Default: a fresh registry with
// the Go and process collectors.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithTracerProvider sets the provider for lifecycle spans. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithProgressListener adds a listener to every lifecycle operation.
func WithProgressListener(l lifecycle.ProgressListener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// WithGRPCService registers an application service on the RPC server.
func WithGRPCService(r rpcserver.Registrar) Option {
	return func(o *options) { o.services = append(o.services, r) }
}

// WithRPCListener serves on lis instead of the configured address.
func WithRPCListener(lis net.Listener) Option {
	return func(o *options) { o.rpcListener = lis }
}

// Service is the top-level component of a stagehand process.
type Service struct {
	*lifecycle.Base

	cfg       config.Config
	logger    log.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	spans     *tracing.SpanListener
	listeners []lifecycle.ProgressListener

	tokens   *auth.JWTSource
	rpc      *rpcserver.Server
	cache    *cache.Cache
	exporter *metrics.Exporter
	watcher  *configwatch.Watcher
	channels []*RemoteChannel

	initPlan      *lifecycle.Composite
	startPlan     *lifecycle.Composite
	stopPlan      *lifecycle.Composite
	terminatePlan *lifecycle.Composite
}

// New validates cfg and wires every component. Nothing is started.
func New(cfg config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.OrNoop(o.logger).With(log.String("service", cfg.ServiceName))

	registry := o.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return nil, fmt.Errorf("register lifecycle metrics: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		collector: collector,
		spans:     tracing.NewSpanListener(o.tracerProvider),
	}
	s.listeners = append([]lifecycle.ProgressListener{lifecycle.NewLogListener(logger), collector, s.spans}, o.listeners...)

	s.Base = lifecycle.NewBase(cfg.ServiceName, lifecycle.Hooks{
		Initialize: func(ctx context.Context, m *lifecycle.Monitor) error { return s.initPlan.Execute(ctx, m) },
		Start:      func(ctx context.Context, m *lifecycle.Monitor) error { return s.startPlan.Execute(ctx, m) },
		Stop:       func(ctx context.Context, m *lifecycle.Monitor) error { return s.stopPlan.Execute(ctx, m) },
		Terminate:  func(ctx context.Context, m *lifecycle.Monitor) error { return s.terminatePlan.Execute(ctx, m) },
	}, lifecycle.WithLogger(logger), lifecycle.WithStateListener(collector))

	if err := s.build(o); err != nil {
		return nil, err
	}
	s.plan()
	return s, nil
}

// build constructs the components in dependency order.
func (s *Service) build(o options) error {
	cfg := s.cfg
	observe := lifecycle.WithStateListener(s.collector)

	var verifier *auth.JWTVerifier
	if cfg.AuthEnabled() {
		jwtCfg := auth.JWTConfig{
			Secret:  cfg.JWTSecret,
			Issuer:  cfg.JWTIssuer,
			Subject: cfg.JWTSubject,
			TTL:     cfg.JWTTTL,
		}
		var err error
		if s.tokens, err = auth.NewJWTSource(jwtCfg); err != nil {
			return fmt.Errorf("create token source: %w", err)
		}
		if verifier, err = auth.NewJWTVerifier(jwtCfg); err != nil {
			return fmt.Errorf("create token verifier: %w", err)
		}
	}

	if cfg.RedisAddr != "" {
		s.cache = cache.New(cache.Config{
			Addr:   cfg.RedisAddr,
			DB:     cfg.RedisDB,
			Logger: s.logger,
		}, observe)
	}

	for _, cc := range cfg.Channels {
		var tokens auth.TokenSource
		if s.tokens != nil {
			tokens = s.tokens
		}
		ch, err := newRemoteChannel(cc, tokens, cfg.StepTimeout, cfg.ShutdownTimeout, s.logger, observe)
		if err != nil {
			return fmt.Errorf("channel %q: %w", cc.Name, err)
		}
		s.channels = append(s.channels, ch)
	}

	if cfg.MetricsEnabled {
		s.exporter = metrics.NewExporter(metrics.ExporterConfig{
			Addr:     cfg.MetricsAddr,
			Gatherer: s.registry,
			Logger:   s.logger,
		}, observe)
	}

	if cfg.WatchConfig && cfg.ConfigPath != "" {
		s.watcher = configwatch.New(configwatch.Config{
			Path:     cfg.ConfigPath,
			OnChange: s.configChanged,
			Logger:   s.logger,
		}, observe)
	}

	s.rpc = rpcserver.New(rpcserver.Config{
		Addr:            cfg.RPCListen,
		Listener:        o.rpcListener,
		Verifier:        verifier,
		Services:        o.services,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          s.logger,
	}, observe)
	return nil
}

// plan declares the four phase plans. Start brings dependencies up before
// the RPC server accepts calls; stop reverses that so in-flight calls drain
// while their dependencies are still available.
func (s *Service) plan() {
	name := s.Name()
	timeout := lifecycle.WithTimeout(s.cfg.StepTimeout)
	composite := lifecycle.WithCompositeLogger(s.logger)

	s.initPlan = lifecycle.NewComposite("Initialize "+name, composite)
	s.startPlan = lifecycle.NewComposite("Start "+name, composite)
	s.stopPlan = lifecycle.NewStopComposite("Stop "+name, composite)
	s.terminatePlan = lifecycle.NewStopComposite("Terminate "+name, composite)

	if s.cache != nil {
		s.initPlan.AddInitializeStep(s, s.cache, s.cfg.RedisRequired, timeout)
		s.startPlan.AddStartStep(s, s.cache, s.cfg.RedisRequired, timeout)
	}

	if len(s.channels) > 0 {
		initChannels := lifecycle.NewComposite("Initialize channels", composite)
		startChannels := lifecycle.NewComposite("Start channels", composite)
		for i, ch := range s.channels {
			required := s.cfg.Channels[i].Required
			initChannels.AddInitializeStep(s, ch, required, timeout)
			startChannels.AddStartStep(s, ch, required, timeout,
				lifecycle.WithErrorMessage(fmt.Sprintf("Unable to connect to %s at %s", ch.Name(), ch.Target())))
		}
		s.initPlan.Add(initChannels)
		s.startPlan.Add(startChannels)
	}

	if s.exporter != nil {
		s.initPlan.AddInitializeStep(s, s.exporter, false, timeout)
		s.startPlan.AddStartStep(s, s.exporter, false, timeout)
	}
	if s.watcher != nil {
		s.initPlan.AddInitializeStep(s, s.watcher, false, timeout)
		s.startPlan.AddStartStep(s, s.watcher, false, timeout)
	}

	s.initPlan.AddInitializeStep(s, s.rpc, true, timeout)
	s.startPlan.AddStartStep(s, s.rpc, true, timeout, lifecycle.WithLabel("start RPC server"))

	for _, plan := range []struct {
		c  *lifecycle.Composite
		op lifecycle.Operation
	}{{s.stopPlan, lifecycle.OpStop}, {s.terminatePlan, lifecycle.OpTerminate}} {
		for _, c := range s.shutdownOrder() {
			plan.c.Add(lifecycle.NewComponentStep(plan.op, s, c, false, timeout))
		}
	}
}

func (s *Service) shutdownOrder() []lifecycle.Component {
	out := []lifecycle.Component{s.rpc}
	if s.watcher != nil {
		out = append(out, s.watcher)
	}
	if s.exporter != nil {
		out = append(out, s.exporter)
	}
	for i := len(s.channels) - 1; i >= 0; i-- {
		out = append(out, s.channels[i])
	}
	if s.cache != nil {
		out = append(out, s.cache)
	}
	return out
}

// configChanged reloads the file and reports whether the new content is usable.
// Running components keep their configuration until the next restart.
func (s *Service) configChanged(_ context.Context, path string) {
	fc, err := config.LoadFileConfig(path)
	if err != nil {
		s.logger.Error("reload configuration", log.String("path", path), log.Err(err))
		return
	}
	next := s.cfg
	if err := config.ApplyFileConfig(&next, fc, nil); err != nil {
		s.logger.Error("apply configuration", log.String("path", path), log.Err(err))
		return
	}
	if err := next.Validate(); err != nil {
		s.logger.Warn("changed configuration is invalid", log.String("path", path), log.Err(err))
		return
	}
	s.logger.Info("configuration changed, restart to apply", log.String("path", path))
}

// operation runs fn under a fresh monitor and a root span.
func (s *Service) operation(ctx context.Context, verb string, fn func(context.Context, *lifecycle.Monitor) error) error {
	m := lifecycle.NewMonitor(verb+" "+s.Name(), s.listeners...)
	ctx, end := s.spans.Trace(ctx, m)
	err := fn(ctx, m)
	end(err)
	return err
}

// Up initializes and starts the service.
func (s *Service) Up(ctx context.Context) error {
	if err := s.operation(ctx, "Initialize", s.Initialize); err != nil {
		return err
	}
	return s.operation(ctx, "Start", s.Start)
}

// Down stops and terminates the service. Stop is safe after a failed or
// partial start.
func (s *Service) Down(ctx context.Context) error {
	stopErr := s.operation(ctx, "Stop", s.Stop)
	if err := s.operation(ctx, "Terminate", s.Terminate); err != nil {
		return err
	}
	return stopErr
}

// Run brings the service up, waits until ctx is done or the RPC server
// fails, and then brings it down within the shutdown timeout. The stop
// plan also runs after a failed start.
func (s *Service) Run(ctx context.Context) error {
	upErr := s.Up(ctx)
	if upErr == nil {
		s.logger.Info("service started")
		select {
		case <-ctx.Done():
		case err := <-s.rpc.Err():
			upErr = fmt.Errorf("rpc server exited: %w", err)
		}
	}

	downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	downErr := s.Down(downCtx)

	if upErr != nil {
		return upErr
	}
	return downErr
}

// Registry returns the Prometheus registry holding the service metrics.
func (s *Service) Registry() *prometheus.Registry { return s.registry }

// RPCServer returns the gRPC server component.
func (s *Service) RPCServer() *rpcserver.Server { return s.rpc }

// Cache returns the cache component, or nil when no Redis address is configured.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Channel returns the remote channel with the given name.
func (s *Service) Channel(name string) (*RemoteChannel, bool) {
	for _, ch := range s.channels {
		if ch.Name() == name {
			return ch, true
		}
	}
	return nil, false
}

// Tokens returns the JWT source used for outgoing calls, or nil when auth is disabled.
func (s *Service) Tokens() *auth.JWTSource { return s.tokens }

var _ lifecycle.Component = (*Service)(nil)
