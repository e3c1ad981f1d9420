package shared

import "context"

// Principal identifies the caller of an operation.
type Principal struct {
	UserID     int64
	Role       string
	Privileged bool
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
