package shared

import "context"

type ownerContextKey struct{}

// ContextWithOwner stores the authenticated owner id in context.
func ContextWithOwner(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, ownerID)
}

// OwnerFromContext extracts the authenticated owner id from context.
// Returns 0 when the request carries no authenticated owner.
func OwnerFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(ownerContextKey{}).(int64)
	return id
}
