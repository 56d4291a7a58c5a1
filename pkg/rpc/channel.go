package rpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bft-labs/stagehand/pkg/lifecycle"
	"github.com/bft-labs/stagehand/pkg/log"
	"github.com/bft-labs/stagehand/pkg/rpc/auth"
)

// DefaultShutdownTimeout bounds how long Stop waits for the connection to close.
const DefaultShutdownTimeout = 5 * time.Second

// ErrInvalidConfig is returned by NewChannel for an unusable configuration.
var ErrInvalidConfig = errors.New("rpc: invalid channel config")

// ErrNotReady is returned by Start when the connection does not become ready
// within ConnectTimeout.
var ErrNotReady = errors.New("rpc: connection not ready")

// ChannelConfig describes one remote endpoint.
type ChannelConfig struct {
	// Name identifies the channel in logs and lifecycle plans.
	// Default: "channel <host>:<port>".
	Name string

	Host string
	Port int

	// TLS enables transport security. Nil means plaintext.
	TLS *tls.Config

	// Tokens supplies the bearer credential for every call. Nil disables auth.
	Tokens auth.TokenSource

	// DialOptions are appended after the channel's own options.
	DialOptions []grpc.DialOption

	// ConnectTimeout, when positive, makes Start wait until the connection is ready.
	ConnectTimeout time.Duration

	// ShutdownTimeout bounds Stop. Default: DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	Logger log.Logger
}

// Validate checks the endpoint.
func (c ChannelConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidConfig, c.Port)
	}
	return nil
}

// Channel is a lifecycle component owning a gRPC connection and the typed
// surfaces built on it. The connection exists only between Start and Stop.
type Channel[S, A any] struct {
	*lifecycle.Base

	cfg       ChannelConfig
	factory   SurfaceFactory[S, A]
	target    string
	closeConn func(*grpc.ClientConn) error

	mu           sync.RWMutex
	conn         *grpc.ClientConn
	syncSurface  S
	asyncSurface A
}

// NewChannel validates cfg and returns a stopped channel.
func NewChannel[S, A any](cfg ChannelConfig, factory SurfaceFactory[S, A], opts ...lifecycle.Option) (*Channel[S, A], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: surface factory is required", ErrInvalidConfig)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	target := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	if cfg.Name == "" {
		cfg.Name = "channel " + target
	}

	c := &Channel[S, A]{
		cfg:       cfg,
		factory:   factory,
		target:    target,
		closeConn: (*grpc.ClientConn).Close,
	}
	opts = append([]lifecycle.Option{lifecycle.WithLogger(cfg.Logger)}, opts...)
	c.Base = lifecycle.NewBase(cfg.Name, lifecycle.Hooks{
		Start:     c.start,
		Stop:      c.stop,
		Terminate: c.stop,
	}, opts...)
	return c, nil
}

// Target returns the "host:port" dial target.
func (c *Channel[S, A]) Target() string { return c.target }

// Conn returns the live connection, or nil when the channel is not started.
func (c *Channel[S, A]) Conn() *grpc.ClientConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Sync returns the synchronous surface. It is the zero value outside Start/Stop.
func (c *Channel[S, A]) Sync() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncSurface
}

// Async returns the asynchronous surface. It is the zero value outside Start/Stop.
func (c *Channel[S, A]) Async() A {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.asyncSurface
}

func (c *Channel[S, A]) dialOptions() []grpc.DialOption {
	creds := insecure.NewCredentials()
	if c.cfg.TLS != nil {
		creds = credentials.NewTLS(c.cfg.TLS)
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if c.cfg.Tokens != nil {
		opts = append(opts,
			grpc.WithChainUnaryInterceptor(auth.UnaryClientInterceptor(c.cfg.Tokens)),
			grpc.WithChainStreamInterceptor(auth.StreamClientInterceptor(c.cfg.Tokens)),
		)
	}
	return append(opts, c.cfg.DialOptions...)
}

func (c *Channel[S, A]) start(ctx context.Context, _ *lifecycle.Monitor) error {
	conn, err := grpc.NewClient(c.target, c.dialOptions()...)
	if err != nil {
		return fmt.Errorf("create client for %s: %w", c.target, err)
	}

	if c.cfg.ConnectTimeout > 0 {
		if err := waitReady(ctx, conn, c.cfg.ConnectTimeout); err != nil {
			_ = conn.Close()
			return fmt.Errorf("connect to %s: %w", c.target, err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.syncSurface = c.factory.NewSyncSurface(conn)
	c.asyncSurface = c.factory.NewAsyncSurface(conn)
	c.mu.Unlock()

	c.Logger().Info("channel started", log.String("target", c.target), log.Bool("tls", c.cfg.TLS != nil))
	return nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("%w: last state %s after %s", ErrNotReady, state, timeout)
		}
	}
}

// stop releases the connection. The close is bounded by ShutdownTimeout; a
// close that takes longer is abandoned and logged.
func (c *Channel[S, A]) stop(ctx context.Context, _ *lifecycle.Monitor) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	var zs S
	var za A
	c.syncSurface, c.asyncSurface = zs, za
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.closeConn(conn)
	}()

	timer := time.NewTimer(c.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close %s: %w", c.target, err)
		}
		c.Logger().Info("channel stopped", log.String("target", c.target))
		return nil
	case <-timer.C:
		c.Logger().Warn("channel close timed out, abandoning",
			log.String("target", c.target),
			log.Duration("timeout", c.cfg.ShutdownTimeout),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ lifecycle.Component = (*Channel[struct{}, struct{}])(nil)
