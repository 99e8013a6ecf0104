package service

import (
	"context"

	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
)

// Decision is the outcome of an access check. Claims is nil when the token
// itself was rejected.
type Decision struct {
	Allowed bool
	Claims  *jwtx.Claims
}

// AccessGate turns a bearer token and a required capability into an
// allow/deny decision. It has no side effects.
type AccessGate struct {
	Codec   *jwtx.Codec
	Revoker Revoker // optional
}

// Authenticate verifies an access token and checks it has not been revoked.
// Refresh tokens are never accepted.
func (g *AccessGate) Authenticate(ctx context.Context, token string) (jwtx.Claims, error) {
	claims, err := g.Codec.Verify(token, jwtx.UseAccess)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidToken
	}
	if g.Revoker != nil {
		revoked, err := g.Revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return jwtx.Claims{}, storeErr("check revocation", err)
		}
		if revoked {
			return jwtx.Claims{}, ErrInvalidToken
		}
	}
	return claims, nil
}

// Authorize allows the request iff the token is a valid, unrevoked access
// token whose capabilities include capability. Any failure denies.
func (g *AccessGate) Authorize(ctx context.Context, token, capability string) Decision {
	claims, err := g.Authenticate(ctx, token)
	if err != nil {
		return Decision{}
	}
	return Decision{
		Allowed: claims.HasCapability(capability),
		Claims:  &claims,
	}
}
