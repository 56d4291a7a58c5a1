package rpc

import "google.golang.org/grpc"

// SurfaceFactory builds the typed client surfaces of a remote service over a
// live connection.
type SurfaceFactory[S, A any] interface {
	NewSyncSurface(conn grpc.ClientConnInterface) S
	NewAsyncSurface(conn grpc.ClientConnInterface) A
}

// SurfaceFuncs adapts plain constructor functions to SurfaceFactory.
// A nil function yields the zero value.
type SurfaceFuncs[S, A any] struct {
	Sync  func(grpc.ClientConnInterface) S
	Async func(grpc.ClientConnInterface) A
}

func (f SurfaceFuncs[S, A]) NewSyncSurface(conn grpc.ClientConnInterface) S {
	var zero S
	if f.Sync == nil {
		return zero
	}
	return f.Sync(conn)
}

func (f SurfaceFuncs[S, A]) NewAsyncSurface(conn grpc.ClientConnInterface) A {
	var zero A
	if f.Async == nil {
		return zero
	}
	return f.Async(conn)
}
