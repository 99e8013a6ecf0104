package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/revocation"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// fakeClock is safe for concurrent use; registrations race in some tests.
type fakeClock struct{ nanos atomic.Int64 }

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.nanos.Store(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time          { return time.Unix(0, c.nanos.Load()).UTC() }
func (c *fakeClock) Advance(d time.Duration) { c.nanos.Add(int64(d)) }

type testEnv struct {
	clock    *fakeClock
	store    store.Store
	hasher   *cryptox.PasswordHasher
	codec    *jwtx.Codec
	sessions *SessionManager
	gate     *AccessGate
	mfa      *MFAService
	roles    *RolesService
}

type envOption func(*envConfig)

type envConfig struct {
	revoker bool
	store   func(store.Store) store.Store
}

func withRevoker() envOption { return func(c *envConfig) { c.revoker = true } }

func wrapStore(fn func(store.Store) store.Store) envOption {
	return func(c *envConfig) { c.store = fn }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	var cfg envConfig
	for _, o := range opts {
		o(&cfg)
	}

	clock := newFakeClock()
	var st store.Store = memory.NewStore()

	roles := &RolesService{Store: st, Clock: clock.Now}
	require.NoError(t, roles.EnsureRoles(context.Background(), DefaultRoles))

	if cfg.store != nil {
		st = cfg.store(st)
	}

	key, err := jwtx.NewHMACKey("test", testSecret)
	require.NoError(t, err)
	codec, err := jwtx.NewCodec(jwtx.CodecOptions{Key: key, Issuer: "tabauth-test", Clock: clock.Now})
	require.NoError(t, err)

	hasher := cryptox.NewPasswordHasher(cryptox.HasherOptions{
		Pepper:        "pepper",
		Params:        cryptox.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16},
		MaxConcurrent: 4,
	})

	var revoker Revoker
	if cfg.revoker {
		d, err := revocation.NewDenylist(context.Background(), revocation.Config{
			MaxTokenLifetime: jwtx.DefaultRefreshTokenTTL,
			Leeway:           codec.Leeway(),
			Clock:            clock.Now,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = d.Close() })
		revoker = d
	}

	totpVerifier := &TOTPVerifier{Clock: clock.Now}
	return &testEnv{
		clock:  clock,
		store:  st,
		hasher: hasher,
		codec:  codec,
		sessions: &SessionManager{
			Store:       st,
			Hasher:      hasher,
			Codec:       codec,
			Revoker:     revoker,
			TOTP:        totpVerifier,
			AccessTTL:   15 * time.Minute,
			RefreshTTL:  jwtx.DefaultRefreshTokenTTL,
			DefaultRole: "user",
			Clock:       clock.Now,
		},
		gate:  &AccessGate{Codec: codec, Revoker: revoker},
		mfa:   &MFAService{Store: st, Hasher: hasher, TOTP: totpVerifier, Issuer: "tabauth-test"},
		roles: roles,
	}
}

func testCtx() context.Context {
	return slogx.WithContext(context.Background(), slogx.Discard())
}

func (e *testEnv) register(t *testing.T, username, password, role string) string {
	t.Helper()
	u, err := e.sessions.Register(testCtx(), RegisterParams{Username: username, Password: password, Role: role})
	require.NoError(t, err)
	return u.ID
}

// Store wrappers for failure injection.

type usersOverride struct {
	store.Users
	getByUsername func(ctx context.Context, username string) error
	updateHash    func(ctx context.Context, p store.PasswordUpdate) error
}

func (u usersOverride) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	if u.getByUsername != nil {
		if err := u.getByUsername(ctx, username); err != nil {
			return domain.User{}, err
		}
	}
	return u.Users.GetUserByUsername(ctx, username)
}

func (u usersOverride) UpdatePasswordHash(ctx context.Context, p store.PasswordUpdate) error {
	if u.updateHash != nil {
		return u.updateHash(ctx, p)
	}
	return u.Users.UpdatePasswordHash(ctx, p)
}

type storeOverride struct {
	store.Store
	users usersOverride
}

func (s storeOverride) Users() store.Users {
	u := s.users
	u.Users = s.Store.Users()
	return u
}
