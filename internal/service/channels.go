package service

import (
	"context"
	"crypto/tls"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/bft-labs/stagehand/internal/config"
	"github.com/bft-labs/stagehand/pkg/lifecycle"
	"github.com/bft-labs/stagehand/pkg/log"
	"github.com/bft-labs/stagehand/pkg/rpc"
	"github.com/bft-labs/stagehand/pkg/rpc/auth"
)

// HealthAsync is the asynchronous surface of a remote channel.
type HealthAsync struct {
	client healthpb.HealthClient
}

// NewHealthAsync wraps conn.
func NewHealthAsync(conn grpc.ClientConnInterface) *HealthAsync {
	return &HealthAsync{client: healthpb.NewHealthClient(conn)}
}

// Check probes the named service ("" for the whole server) without blocking.
func (h *HealthAsync) Check(ctx context.Context, service string) <-chan rpc.Result[*healthpb.HealthCheckResponse] {
	return rpc.Go(ctx, func(ctx context.Context) (*healthpb.HealthCheckResponse, error) {
		return h.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	})
}

// RemoteChannel is a managed connection to a peer service.
type RemoteChannel = rpc.Channel[healthpb.HealthClient, *HealthAsync]

var remoteSurfaces = rpc.SurfaceFuncs[healthpb.HealthClient, *HealthAsync]{
	Sync:  healthpb.NewHealthClient,
	Async: NewHealthAsync,
}

// newRemoteChannel builds the channel for one configured peer. Required
// peers must be reachable within connectTimeout for Start to succeed;
// optional peers connect lazily.
func newRemoteChannel(cc config.ChannelConfig, tokens auth.TokenSource, connectTimeout, shutdownTimeout time.Duration, logger log.Logger, opts ...lifecycle.Option) (*RemoteChannel, error) {
	chCfg := rpc.ChannelConfig{
		Name:            cc.Name,
		Host:            cc.Host,
		Port:            cc.Port,
		Tokens:          tokens,
		ShutdownTimeout: shutdownTimeout,
		Logger:          logger,
	}
	if cc.TLS {
		chCfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cc.Host}
	}
	if cc.Required {
		chCfg.ConnectTimeout = connectTimeout
	}
	return rpc.NewChannel[healthpb.HealthClient, *HealthAsync](chCfg, remoteSurfaces, opts...)
}
