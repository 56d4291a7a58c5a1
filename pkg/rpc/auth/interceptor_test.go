package auth

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const healthCheck = "/grpc.health.v1.Health/Check"

// startServer serves the health service behind the verifier on an in-memory listener.
func startServer(t *testing.T, v *JWTVerifier, exempt ...string) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(v.UnaryServerInterceptor(exempt...)),
		grpc.ChainStreamInterceptor(v.StreamServerInterceptor(exempt...)),
	)
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener, src TokenSource) healthpb.HealthClient {
	t.Helper()
	opts := []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if src != nil {
		opts = append(opts,
			grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(src)),
			grpc.WithChainStreamInterceptor(StreamClientInterceptor(src)),
		)
	}
	conn, err := grpc.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestInterceptors_TokenAccepted(t *testing.T) {
	v, err := NewJWTVerifier(testConfig())
	require.NoError(t, err)
	src, err := NewJWTSource(testConfig())
	require.NoError(t, err)

	client := dial(t, startServer(t, v), src)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestInterceptors_MissingToken(t *testing.T) {
	v, err := NewJWTVerifier(testConfig())
	require.NoError(t, err)

	client := dial(t, startServer(t, v), nil)

	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestInterceptors_ExemptMethod(t *testing.T) {
	v, err := NewJWTVerifier(testConfig())
	require.NoError(t, err)

	client := dial(t, startServer(t, v, healthCheck), nil)

	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.NoError(t, err)
}

func TestInterceptors_TokenSourceFailure(t *testing.T) {
	v, err := NewJWTVerifier(testConfig())
	require.NoError(t, err)
	calls := 0
	src := TokenSourceFunc(func(context.Context) (string, error) {
		calls++
		return "", errors.New("vault sealed")
	})

	client := dial(t, startServer(t, v), src)

	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "vault sealed")
	assert.Equal(t, 1, calls)

	// Consulted again on the next call.
	_, _ = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, 2, calls)
}

func TestInterceptors_ClaimsInHandler(t *testing.T) {
	v, err := NewJWTVerifier(testConfig())
	require.NoError(t, err)
	src, err := NewJWTSource(testConfig())
	require.NoError(t, err)
	token, err := src.Token(context.Background())
	require.NoError(t, err)

	ctx, err := withToken(context.Background(), StaticToken(token))
	require.NoError(t, err)
	md, _ := metadataFromOutgoing(ctx)

	var got *Claims
	interceptor := v.UnaryServerInterceptor()
	_, err = interceptor(incoming(md), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Call"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			got, _ = ClaimsFromContext(ctx)
			return nil, nil
		})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "device-service", got.Subject)
}
