package auth

import (
	"context"

	"google.golang.org/grpc"
)

// ContextInterceptor lifts the caller identity from incoming metadata onto the
// request context so handlers and use cases can read it with GetUserID.
func ContextInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if id := GetUserID(ctx); id != "" {
			ctx = WithUserID(ctx, id)
		}
		return handler(ctx, req)
	}
}
