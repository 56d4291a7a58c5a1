package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

func metadataFromOutgoing(ctx context.Context) (metadata.MD, bool) {
	return metadata.FromOutgoingContext(ctx)
}

func incoming(md metadata.MD) context.Context {
	return metadata.NewIncomingContext(context.Background(), md)
}
