package revocation_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/revocation"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now atomic.Int64 }

func newFakeClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.now.Store(t.UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time          { return time.Unix(0, c.now.Load()) }
func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func newDenylist(t *testing.T, clock func() time.Time) *revocation.Denylist {
	t.Helper()
	d, err := revocation.NewDenylist(context.Background(), revocation.Config{
		MaxTokenLifetime: time.Hour,
		Clock:            clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDenylist_RevokeUntilExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	d := newDenylist(t, clock.Now)
	ctx := context.Background()

	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, "jti-1", clock.Now().Add(10*time.Minute)))

	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = d.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)

	clock.Advance(10 * time.Minute)
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked, "entry is ignored once the token itself expired")
}

func TestDenylist_HoldsThroughLeeway(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	d, err := revocation.NewDenylist(context.Background(), revocation.Config{
		MaxTokenLifetime: time.Hour,
		Leeway:           time.Second,
		Clock:            clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	ctx := context.Background()

	exp := clock.Now().Add(time.Minute)
	require.NoError(t, d.Revoke(ctx, "jti-1", exp))

	clock.Advance(time.Minute + 500*time.Millisecond)
	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked, "the verifier still accepts the token within the leeway")

	clock.Advance(time.Second)
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	// Already past exp but inside the leeway: still worth recording.
	require.NoError(t, d.Revoke(ctx, "jti-2", clock.Now().Add(-500*time.Millisecond)))
	revoked, err = d.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestDenylist_IgnoresExpiredAndEmpty(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	d := newDenylist(t, clock.Now)
	ctx := context.Background()

	require.NoError(t, d.Revoke(ctx, "old", clock.Now().Add(-time.Second)))
	require.NoError(t, d.Revoke(ctx, "", clock.Now().Add(time.Hour)))
	require.Zero(t, d.Len())
}

func TestDenylist_CancelledContext(t *testing.T) {
	t.Parallel()

	d := newDenylist(t, time.Now)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, d.Revoke(ctx, "jti", time.Now().Add(time.Minute)), context.Canceled)
	_, err := d.IsRevoked(ctx, "jti")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewDenylist_RequiresLifetime(t *testing.T) {
	t.Parallel()

	_, err := revocation.NewDenylist(context.Background(), revocation.Config{})
	require.Error(t, err)
}
