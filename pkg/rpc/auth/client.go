package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HeaderKey is the metadata key carrying the bearer credential.
const HeaderKey = "authorization"

const bearerPrefix = "Bearer "

// UnaryClientInterceptor attaches a bearer token from src to every unary call.
func UnaryClientInterceptor(src TokenSource) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, err := withToken(ctx, src)
		if err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor attaches a bearer token from src to every stream.
func StreamClientInterceptor(src TokenSource) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		ctx, err := withToken(ctx, src)
		if err != nil {
			return nil, err
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}

func withToken(ctx context.Context, src TokenSource) (context.Context, error) {
	if src == nil {
		return ctx, nil
	}
	token, err := src.Token(ctx)
	if err != nil {
		return ctx, status.Errorf(codes.Unauthenticated, "obtain token: %v", err)
	}
	return metadata.AppendToOutgoingContext(ctx, HeaderKey, bearerPrefix+token), nil
}

// bearerFromIncoming extracts the bearer token from incoming metadata.
func bearerFromIncoming(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get(HeaderKey) {
		if len(v) > len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
			return v[len(bearerPrefix):], true
		}
	}
	return "", false
}
