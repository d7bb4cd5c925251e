package user

import "context"

type claimsCtxKey struct{}

// NewContext returns a context carrying the validated session claims.
func NewContext(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

// FromContext extracts the session claims stored by the auth middleware, or nil.
func FromContext(ctx context.Context) *SessionClaims {
	claims, _ := ctx.Value(claimsCtxKey{}).(*SessionClaims)
	return claims
}
