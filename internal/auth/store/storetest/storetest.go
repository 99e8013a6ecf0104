// Package storetest holds the behavioural contract every store driver must
// satisfy. Driver packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, migrated store.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Roles", func(t *testing.T) { testRoles(t, newStore(t)) })
	t.Run("CreateAndLookupUser", func(t *testing.T) { testCreateAndLookup(t, newStore(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicateUsername(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("UnknownRole", func(t *testing.T) { testUnknownRole(t, newStore(t)) })
	t.Run("PasswordCompareAndSwap", func(t *testing.T) { testPasswordCAS(t, newStore(t)) })
	t.Run("MFA", func(t *testing.T) { testMFA(t, newStore(t)) })
	t.Run("DeleteAndCount", func(t *testing.T) { testDeleteAndCount(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
}

func seedRole(t *testing.T, s store.Store, id, name string, caps ...string) domain.Role {
	t.Helper()
	r := domain.Role{ID: id, Name: name, Capabilities: caps, CreatedAt: epoch, UpdatedAt: epoch}
	require.NoError(t, s.Roles().CreateRole(context.Background(), r))
	return r
}

func newUser(id, username, roleID string) domain.User {
	return domain.User{
		ID:                id,
		Username:          username,
		PasswordHash:      "hash-" + id,
		RoleID:            roleID,
		PasswordChangedAt: epoch,
		CreatedAt:         epoch,
		UpdatedAt:         epoch,
	}
}

func testRoles(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedRole(t, s, "r2", "user", "profile:write", "profile:read", "profile:read")
	seedRole(t, s, "r1", "admin", "users:write")

	got, err := s.Roles().GetRoleByName(ctx, "user")
	require.NoError(t, err)
	require.Equal(t, []string{"profile:read", "profile:write"}, got.Capabilities)
	require.True(t, got.CreatedAt.Equal(epoch))

	byID, err := s.Roles().GetRoleByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "admin", byID.Name)

	all, err := s.Roles().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "admin", all[0].Name)
	require.Equal(t, "user", all[1].Name)

	err = s.Roles().CreateRole(ctx, domain.Role{ID: "r3", Name: "user", CreatedAt: epoch, UpdatedAt: epoch})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	require.NoError(t, s.Roles().UpdateRoleCapabilities(ctx, "r1", []string{"roles:read", "users:write"}, epoch.Add(time.Minute)))
	byID, err = s.Roles().GetRoleByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, []string{"roles:read", "users:write"}, byID.Capabilities)

	require.ErrorIs(t, s.Roles().UpdateRoleCapabilities(ctx, "missing", nil, epoch), store.ErrNotFound)

	_, err = s.Roles().GetRoleByName(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	seedRole(t, s, "r4", "empty")
	empty, err := s.Roles().GetRoleByID(ctx, "r4")
	require.NoError(t, err)
	require.Empty(t, empty.Capabilities)
}

func testCreateAndLookup(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedRole(t, s, "r1", "user", "profile:read")
	require.NoError(t, s.Users().CreateUser(ctx, newUser("u1", "alice", "r1")))

	got, err := s.Users().GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "hash-u1", got.PasswordHash)
	require.Equal(t, "r1", got.RoleID)
	require.True(t, got.PasswordChangedAt.Equal(epoch))
	require.Nil(t, got.MFASecret)
	require.Nil(t, got.MFAEnabled)

	byName, err := s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "u1", byName.ID)

	folded, err := s.Users().GetUserByUsername(ctx, "ALICE")
	require.NoError(t, err, "usernames compare case-insensitively")
	require.Equal(t, "u1", folded.ID)

	_, err = s.Users().GetUserByUsername(ctx, "bob")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Users().GetUserByID(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateUsername(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedRole(t, s, "r1", "user")
	require.NoError(t, s.Users().CreateUser(ctx, newUser("u1", "alice", "r1")))

	err := s.Users().CreateUser(ctx, newUser("u2", "Alice", "r1"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	err = s.Users().CreateUser(ctx, newUser("u1", "carol", "r1"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedRole(t, s, "r1", "user")

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		exists int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Users().CreateUser(ctx, newUser(fmt.Sprintf("u%d", i), "dave", "r1"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrAlreadyExists):
				exists++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, workers-1, exists)
}

func testUnknownRole(t *testing.T, s store.Store) {
	err := s.Users().CreateUser(context.Background(), newUser("u1", "alice", "ghost"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testPasswordCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedRole(t, s, "r1", "user")
	require.NoError(t, s.Users().CreateUser(ctx, newUser("u1", "alice", "r1")))

	later := epoch.Add(time.Hour)

	// Transparent rehash keeps PasswordChangedAt.
	require.NoError(t, s.Users().UpdatePasswordHash(ctx, store.PasswordUpdate{
		UserID: "u1", ExpectedHash: "hash-u1", NewHash: "rehashed", UpdatedAt: later,
	}))
	got, err := s.Users().GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "rehashed", got.PasswordHash)
	require.True(t, got.PasswordChangedAt.Equal(epoch))
	require.True(t, got.UpdatedAt.Equal(later))

	// Stale expectation loses.
	err = s.Users().UpdatePasswordHash(ctx, store.PasswordUpdate{
		UserID: "u1", ExpectedHash: "hash-u1", NewHash: "other", UpdatedAt: later,
	})
	require.ErrorIs(t, err, store.ErrConflict)

	rotatedAt := later.Add(time.Minute)
	require.NoError(t, s.Users().UpdatePasswordHash(ctx, store.PasswordUpdate{
		UserID: "u1", ExpectedHash: "rehashed", NewHash: "rotated", UpdatedAt: rotatedAt, Rotated: true,
	}))
	got, err = s.Users().GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "rotated", got.PasswordHash)
	require.True(t, got.PasswordChangedAt.Equal(rotatedAt))

	err = s.Users().UpdatePasswordHash(ctx, store.PasswordUpdate{
		UserID: "ghost", ExpectedHash: "x", NewHash: "y", UpdatedAt: later,
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testMFA(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedRole(t, s, "r1", "user")
	require.NoError(t, s.Users().CreateUser(ctx, newUser("u1", "alice", "r1")))

	require.ErrorIs(t, s.Users().EnableMFA(ctx, "u1", epoch), store.ErrConflict, "no pending secret")
	require.ErrorIs(t, s.Users().EnableMFA(ctx, "ghost", epoch), store.ErrNotFound)

	require.NoError(t, s.Users().SetMFASecret(ctx, "u1", "JBSWY3DPEHPK3PXP", epoch))
	got, err := s.Users().GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.MFASecret)
	require.False(t, got.TOTPEnabled())

	enabledAt := epoch.Add(time.Minute)
	require.NoError(t, s.Users().EnableMFA(ctx, "u1", enabledAt))
	got, err = s.Users().GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, got.TOTPEnabled())
	require.True(t, got.MFAEnabled.Equal(enabledAt))

	require.NoError(t, s.Users().DisableMFA(ctx, "u1", enabledAt))
	got, err = s.Users().GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.False(t, got.TOTPEnabled())
	require.Nil(t, got.MFASecret)

	require.ErrorIs(t, s.Users().SetMFASecret(ctx, "ghost", "x", epoch), store.ErrNotFound)
}

func testDeleteAndCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedRole(t, s, "r1", "user")
	require.NoError(t, s.Users().CreateUser(ctx, newUser("u1", "alice", "r1")))
	require.NoError(t, s.Users().CreateUser(ctx, newUser("u2", "bob", "r1")))

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.Users().DeleteUser(ctx, "u1"))
	require.ErrorIs(t, s.Users().DeleteUser(ctx, "u1"), store.ErrNotFound)

	n, err = s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// The username is free again.
	require.NoError(t, s.Users().CreateUser(ctx, newUser("u3", "alice", "r1")))
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedRole(t, s, "r1", "user")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, newUser("u1", "alice", "r1")); err != nil {
			return err
		}
		if _, err := tx.Users().GetUserByUsername(ctx, "alice"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Users().GetUserByUsername(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, newUser("u1", "alice", "r1"))
	}))
	_, err = s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
}
