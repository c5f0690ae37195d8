package httputil

import (
	"context"

	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
)

type principalKey struct{}

// WithPrincipal stores the authenticated principal in the context.
func WithPrincipal(ctx context.Context, principal policyDomain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// GetPrincipal returns the principal stored by the authentication middleware.
func GetPrincipal(ctx context.Context) (policyDomain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(policyDomain.Principal)
	return p, ok
}

// Actor is the audit actor for the request, "anonymous" when unauthenticated.
func Actor(ctx context.Context) string {
	if p, ok := GetPrincipal(ctx); ok && p.UserID != "" {
		return p.UserID
	}
	return "anonymous"
}
