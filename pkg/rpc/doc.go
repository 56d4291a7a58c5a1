// Package rpc provides Channel, a lifecycle-managed gRPC client connection.
//
// A Channel owns one *grpc.ClientConn. The connection is created on Start and
// released on Stop. Typed client surfaces are built from it through a
// SurfaceFactory, so one Channel type serves every remote service:
//
//	devices, err := rpc.NewChannel[pb.DevicesClient, *DevicesAsync](
//		rpc.ChannelConfig{Host: "devices", Port: 9090, Tokens: src},
//		rpc.SurfaceFuncs[pb.DevicesClient, *DevicesAsync]{
//			Sync:  pb.NewDevicesClient,
//			Async: NewDevicesAsync,
//		})
//
// Every outgoing call carries a bearer token fetched from the configured
// auth.TokenSource at call time.
package rpc
