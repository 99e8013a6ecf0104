package service

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestAccessGate_TamperedCapabilities(t *testing.T) {
	env := newTestEnv(t)
	ctx := testCtx()
	env.register(t, "alice", "S3cret!", "")

	pair, err := env.sessions.Login(ctx, LoginParams{Username: "alice", Password: "S3cret!"})
	require.NoError(t, err)
	require.False(t, env.gate.Authorize(ctx, pair.AccessToken, domain.CapUsersWrite).Allowed)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	payload["caps"] = []string{domain.CapProfileRead, domain.CapUsersWrite}
	forged, err := json.Marshal(payload)
	require.NoError(t, err)

	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString(forged) + "." + parts[2]

	d := env.gate.Authorize(ctx, tampered, domain.CapUsersWrite)
	require.False(t, d.Allowed)
	require.Nil(t, d.Claims)
}

func TestAccessGate_Deny(t *testing.T) {
	env := newTestEnv(t)
	ctx := testCtx()
	env.register(t, "alice", "S3cret!", "")

	pair, err := env.sessions.Login(ctx, LoginParams{Username: "alice", Password: "S3cret!"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		capability string
		claims     bool
	}{
		{"empty token", "", domain.CapProfileRead, false},
		{"garbage", "a.b.c", domain.CapProfileRead, false},
		{"refresh token", pair.RefreshToken, domain.CapProfileRead, false},
		{"empty capability", pair.AccessToken, "", true},
		{"missing capability", pair.AccessToken, "billing:read", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := env.gate.Authorize(ctx, tt.token, tt.capability)
			require.False(t, d.Allowed)
			require.Equal(t, tt.claims, d.Claims != nil)
		})
	}
}

func TestAccessGate_NoSideEffects(t *testing.T) {
	env := newTestEnv(t, withRevoker())
	ctx := testCtx()
	env.register(t, "alice", "S3cret!", "")

	pair, err := env.sessions.Login(ctx, LoginParams{Username: "alice", Password: "S3cret!"})
	require.NoError(t, err)

	for range 3 {
		require.True(t, env.gate.Authorize(ctx, pair.AccessToken, domain.CapProfileRead).Allowed)
	}
	_, err = env.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err, "authorizing did not consume anything")
}
