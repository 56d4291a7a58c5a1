// Package rpcserver runs the service's gRPC endpoint as a lifecycle component.
package rpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/bft-labs/stagehand/pkg/lifecycle"
	"github.com/bft-labs/stagehand/pkg/log"
	"github.com/bft-labs/stagehand/pkg/rpc/auth"
)

const defaultShutdownTimeout = 10 * time.Second

// Health check methods are always reachable without credentials.
var healthMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/Watch",
}

// Registrar attaches a service implementation to the server.
type Registrar func(*grpc.Server)

// Config configures a Server.
type Config struct {
	// Name of the component. Default: "rpc-server".
	Name string

	// Addr is the TCP listen address, e.g. "127.0.0.1:9090".
	Addr string

	// Listener, when set, is used instead of listening on Addr. It is
	// consumed by the first Start.
	Listener net.Listener

	// Verifier enables bearer-token authentication. Nil disables it.
	Verifier *auth.JWTVerifier

	// ExemptMethods are full method names served without authentication,
	// in addition to the health service.
	ExemptMethods []string

	Services []Registrar

	// ShutdownTimeout bounds GracefulStop before the server is stopped forcibly.
	ShutdownTimeout time.Duration

	Logger log.Logger
}

// Server is a gRPC server component. The listener is opened on Start and
// closed on Stop; a stopped server can be started again.
type Server struct {
	*lifecycle.Base
	cfg Config

	mu       sync.Mutex
	srv      *grpc.Server
	health   *health.Server
	lis      net.Listener
	serveErr chan error
}

// New creates a server component.
func New(cfg Config, opts ...lifecycle.Option) *Server {
	if cfg.Name == "" {
		cfg.Name = "rpc-server"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	s := &Server{cfg: cfg}
	opts = append([]lifecycle.Option{lifecycle.WithLogger(cfg.Logger)}, opts...)
	s.Base = lifecycle.NewBase(cfg.Name, lifecycle.Hooks{
		Initialize: s.initialize,
		Start:      s.start,
		Stop:       s.stop,
		Terminate:  s.stop,
	}, opts...)
	return s
}

// Addr returns the bound listen address, or nil when not serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// SetServingStatus updates the health status reported for service ("" is the
// whole server). It has no effect while the server is stopped.
func (s *Server) SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	h := s.health
	s.mu.Unlock()
	if h != nil {
		h.SetServingStatus(service, status)
	}
}

// Err returns a channel that receives the error if Serve exits on its own.
func (s *Server) Err() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

func (s *Server) initialize(ctx context.Context, _ *lifecycle.Monitor) error {
	if s.cfg.Listener == nil && s.cfg.Addr == "" {
		return errors.New("listen address is required")
	}
	if s.cfg.Listener == nil {
		if _, _, err := net.SplitHostPort(s.cfg.Addr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", s.cfg.Addr, err)
		}
	}
	return nil
}

func (s *Server) newGRPCServer() *grpc.Server {
	var opts []grpc.ServerOption
	if s.cfg.Verifier != nil {
		exempt := append(append([]string{}, healthMethods...), s.cfg.ExemptMethods...)
		opts = append(opts,
			grpc.ChainUnaryInterceptor(s.cfg.Verifier.UnaryServerInterceptor(exempt...)),
			grpc.ChainStreamInterceptor(s.cfg.Verifier.StreamServerInterceptor(exempt...)),
		)
	}
	return grpc.NewServer(opts...)
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	if s.cfg.Listener != nil {
		lis := s.cfg.Listener
		s.cfg.Listener = nil
		return lis, nil
	}
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", s.cfg.Addr)
}

func (s *Server) start(ctx context.Context, _ *lifecycle.Monitor) error {
	lis, err := s.listen(ctx)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	srv := s.newGRPCServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	for _, register := range s.cfg.Services {
		register(srv)
	}

	serveErr := make(chan error, 1)
	s.mu.Lock()
	s.srv, s.health, s.lis, s.serveErr = srv, hs, lis, serveErr
	s.mu.Unlock()

	go func() {
		serveErr <- srv.Serve(lis)
	}()

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.Logger().Info("gRPC server listening", log.String("addr", lis.Addr().String()))
	return nil
}

// stop drains in-flight calls for up to ShutdownTimeout, then forces the
// server down.
func (s *Server) stop(ctx context.Context, _ *lifecycle.Monitor) error {
	s.mu.Lock()
	srv, hs := s.srv, s.health
	s.srv, s.health, s.lis = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	hs.Shutdown()

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		s.Logger().Info("gRPC server stopped")
	case <-timer.C:
		s.Logger().Warn("graceful stop timed out, forcing", log.Duration("timeout", s.cfg.ShutdownTimeout))
		srv.Stop()
	case <-ctx.Done():
		srv.Stop()
		return ctx.Err()
	}
	return nil
}

var _ lifecycle.Component = (*Server)(nil)
