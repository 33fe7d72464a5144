package shared

import "context"

type principalContextKey struct{}

type correlationContextKey struct{}

// Principal is the authenticated actor resolved by the upstream
// authentication layer. Only the identity snapshot travels with the
// request; roles and permissions are resolved per check.
type Principal struct {
	ID    int64
	Email string
}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context, nil when the
// request was not authenticated upstream.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// ContextWithCorrelationID stores the request correlation id in context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationContextKey{}, id)
}

// CorrelationIDFromContext extracts the correlation id, empty when unset.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationContextKey{}).(string)
	return id
}
