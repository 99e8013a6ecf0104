package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestClaims_HasCapability(t *testing.T) {
	c := jwtx.Claims{Capabilities: []string{"profile:read", "admin:read"}}

	require.True(t, c.HasCapability("profile:read"))
	require.True(t, c.HasCapability("admin:read"))
	require.False(t, c.HasCapability("admin:write"))
	require.False(t, c.HasCapability(""))
	require.False(t, jwtx.Claims{}.HasCapability("profile:read"))
}

func TestClaims_Times(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}

	require.True(t, c.IssuedAtTime().Equal(now))
	require.True(t, c.ExpiresAtTime().Equal(now.Add(time.Hour)))
	require.True(t, jwtx.Claims{}.IssuedAtTime().IsZero())
	require.True(t, jwtx.Claims{}.ExpiresAtTime().IsZero())
}

func TestTokenUse_Valid(t *testing.T) {
	require.True(t, jwtx.UseAccess.Valid())
	require.True(t, jwtx.UseRefresh.Valid())
	require.False(t, jwtx.TokenUse("id").Valid())
	require.False(t, jwtx.TokenUse("").Valid())
}

func TestNewJTI(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for range 100 {
		jti := jwtx.NewJTI()
		require.Len(t, jti, 27)
		_, dup := seen[jti]
		require.False(t, dup)
		seen[jti] = struct{}{}
	}
}
