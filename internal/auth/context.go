package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// SystemActor is recorded on movements that no user initiated.
const SystemActor = "system"

type ctxKey string

const userIDKey ctxKey = "user_id"

// WithUserID stores the acting user on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the acting user set by an interceptor or carried in the
// x-user-id metadata, or "" when neither is present.
func GetUserID(ctx context.Context) string {
	if val, ok := ctx.Value(userIDKey).(string); ok && val != "" {
		return val
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get("x-user-id"); len(val) > 0 {
			return val[0]
		}
	}
	return ""
}

// ResolveActor prefers an explicit user id, then the caller on ctx, then SystemActor.
func ResolveActor(ctx context.Context, explicit string) string {
	if explicit != "" && explicit != "unknown" {
		return explicit
	}
	if id := GetUserID(ctx); id != "" {
		return id
	}
	return SystemActor
}
