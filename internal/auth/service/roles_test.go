package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRolesService_EnsureRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := testCtx()

	roles, err := env.roles.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.Equal(t, "admin", roles[0].Name)

	// Idempotent.
	require.NoError(t, env.roles.EnsureRoles(ctx, DefaultRoles))
	again, err := env.roles.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, roles[0].ID, again[0].ID)
	require.Equal(t, roles[0].Capabilities, again[0].Capabilities)

	require.NoError(t, env.roles.EnsureRoles(ctx, []RoleSpec{
		{Name: "auditor", Capabilities: []string{"reports:read", "reports:read"}},
	}))
	roles, err = env.roles.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	require.Equal(t, "auditor", roles[1].Name)
	require.Equal(t, []string{"reports:read"}, roles[1].Capabilities)
}

func TestRolesService_EnsureRolesValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := testCtx()

	tests := []RoleSpec{
		{Name: "", Capabilities: nil},
		{Name: "bad role", Capabilities: nil},
		{Name: "ok", Capabilities: []string{"NoColon"}},
	}
	for _, spec := range tests {
		require.ErrorIs(t, env.roles.EnsureRoles(ctx, []RoleSpec{spec}), ErrInvalidRequest, spec.Name)
	}
}
