package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type claimsKey struct{}

// ClaimsFromContext returns the claims attached by the server interceptors.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// UnaryServerInterceptor rejects unary calls without a valid bearer token.
// Calls to the exempt full method names are passed through unchecked.
func (v *JWTVerifier) UnaryServerInterceptor(exempt ...string) grpc.UnaryServerInterceptor {
	skip := toSet(exempt)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if skip[info.FullMethod] {
			return handler(ctx, req)
		}
		ctx, err := v.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor rejects streams without a valid bearer token.
func (v *JWTVerifier) StreamServerInterceptor(exempt ...string) grpc.StreamServerInterceptor {
	skip := toSet(exempt)
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if skip[info.FullMethod] {
			return handler(srv, ss)
		}
		ctx, err := v.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}

func (v *JWTVerifier) authenticate(ctx context.Context) (context.Context, error) {
	token, ok := bearerFromIncoming(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	claims, err := v.Verify(token)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, err.Error())
	}
	return context.WithValue(ctx, claimsKey{}, claims), nil
}

type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context { return s.ctx }

func toSet(methods []string) map[string]bool {
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[m] = true
	}
	return set
}
