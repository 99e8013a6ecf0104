package httpx

import (
	"context"

	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
)

type ctxKey string

const (
	ctxKeyClaims ctxKey = "claims"
	ctxKeyToken  ctxKey = "token"
)

// WithClaims stores verified claims and the raw bearer token in ctx.
func WithClaims(ctx context.Context, token string, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClaims, c)
	return context.WithValue(ctx, ctxKeyToken, token)
}

// ClaimsFromContext returns the claims stored by Authn.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(jwtx.Claims)
	return c, ok
}

// TokenFromContext returns the bearer token that produced the claims.
func TokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyToken).(string)
	return s
}

// UserID returns the authenticated subject, or "" when unauthenticated.
func UserID(ctx context.Context) string {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	return c.Subject
}
