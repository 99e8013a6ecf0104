package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenUse distinguishes access tokens from refresh tokens. A refresh token
// can never be presented where an access token is expected and vice versa.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

func (u TokenUse) Valid() bool {
	return u == UseAccess || u == UseRefresh
}

// Claims are the signed contents of every token we issue. The signature
// covers the whole set, so capabilities cannot be edited by the holder.
type Claims struct {
	jwt.RegisteredClaims

	// Username the principal logged in with
	Username string `json:"username,omitempty"`

	// Capabilities granted at issue time, e.g. "profile:read". Empty on
	// refresh tokens.
	Capabilities []string `json:"caps,omitempty"`

	// Use is "access" or "refresh"
	Use TokenUse `json:"use"`

	// CredentialStamp identifies the password a refresh token was issued
	// under. Empty on access tokens.
	CredentialStamp int64 `json:"cst,omitempty"`
}

// HasCapability reports whether the claims grant cap.
func (c Claims) HasCapability(capability string) bool {
	return capability != "" && slices.Contains(c.Capabilities, capability)
}

// IssuedAtTime returns the iat claim, or the zero time when absent.
func (c Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns the exp claim, or the zero time when absent.
func (c Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
