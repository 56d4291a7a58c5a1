package service

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/bft-labs/stagehand/pkg/rpc"
)

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func rpcAwait(ctx context.Context, ch *RemoteChannel) (*healthpb.HealthCheckResponse, error) {
	return rpc.Await(ctx, ch.Async().Check(ctx, ""))
}
