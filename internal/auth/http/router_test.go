package http_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	authhttp "github.com/aussiebroadwan/tabauth/internal/auth/http"
	"github.com/aussiebroadwan/tabauth/internal/auth/revocation"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router   *authhttp.Router
	store    *memory.Store
	sessions *service.SessionManager
}

func newTestServer(t *testing.T, limits authhttp.RateLimits) *testServer {
	t.Helper()
	ctx := context.Background()

	st := memory.NewStore()
	roles := &service.RolesService{Store: st}
	require.NoError(t, roles.EnsureRoles(ctx, service.DefaultRoles))

	key, err := jwtx.NewHMACKey("test", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	codec, err := jwtx.NewCodec(jwtx.CodecOptions{Key: key, Issuer: "tabauth-test"})
	require.NoError(t, err)

	denylist, err := revocation.NewDenylist(ctx, revocation.Config{
		MaxTokenLifetime: jwtx.DefaultRefreshTokenTTL,
		Leeway:           codec.Leeway(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = denylist.Close() })

	hasher := cryptox.NewPasswordHasher(cryptox.HasherOptions{
		Params: cryptox.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16},
	})

	sessions := &service.SessionManager{
		Store:       st,
		Hasher:      hasher,
		Codec:       codec,
		Revoker:     denylist,
		DefaultRole: "user",
	}

	r := authhttp.NewRouter(st, "test", slogx.Discard())
	r.Sessions = sessions
	r.Gate = &service.AccessGate{Codec: codec, Revoker: denylist}
	r.Roles = roles
	r.MFA = &service.MFAService{Store: st, Hasher: hasher, Issuer: "tabauth-test"}
	r.Limits = limits
	r.ApplyRoutes()

	return &testServer{router: r, store: st, sessions: sessions}
}

// noLimits disables rate limiting so tests can make many calls.
var noLimits = authhttp.RateLimits{}

func (s *testServer) register(t *testing.T, username, password, role string) {
	t.Helper()
	_, err := s.sessions.Register(context.Background(), service.RegisterParams{
		Username: username, Password: password, Role: role,
	})
	require.NoError(t, err)
}

func (s *testServer) login(t *testing.T, username, password string) (access, refresh string) {
	t.Helper()
	pair, err := s.sessions.Login(context.Background(), service.LoginParams{Username: username, Password: password})
	require.NoError(t, err)
	return pair.AccessToken, pair.RefreshToken
}

func bearer(token string) string { return "Bearer " + token }

func TestRegister(t *testing.T) {
	srv := newTestServer(t, noLimits)

	apitest.New().
		Handler(srv.router).
		Post("/v1/register").
		JSON(`{"username":"alice","password":"S3cret!"}`).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.username", "alice")).
		Assert(jsonpath.Equal("$.role", "user")).
		Assert(jsonpath.Contains("$.capabilities", "profile:read")).
		Assert(jsonpath.NotPresent("$.password")).
		End()

	apitest.New().
		Handler(srv.router).
		Post("/v1/register").
		JSON(`{"username":"alice","password":"another"}`).
		Expect(t).
		Status(http.StatusConflict).
		Assert(jsonpath.Equal("$.error", "already_exists")).
		End()
}

func TestRegister_Validation(t *testing.T) {
	srv := newTestServer(t, noLimits)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"short username", `{"username":"al","password":"pw"}`, "$.details.username"},
		{"missing password", `{"username":"alice"}`, "$.details.password"},
		{"unknown field", `{"username":"alice","password":"pw","role":"admin"}`, "$.details.body"},
		{"not json", `username=alice`, "$.details.body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apitest.New().
				Handler(srv.router).
				Post("/v1/register").
				Body(tt.body).
				Header("Content-Type", "application/json").
				Expect(t).
				Status(http.StatusBadRequest).
				Assert(jsonpath.Equal("$.error", "invalid_request")).
				Assert(jsonpath.Present(tt.field)).
				End()
		})
	}
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")

	apitest.New().
		Handler(srv.router).
		Post("/v1/sessions").
		JSON(`{"username":"alice","password":"S3cret!"}`).
		Expect(t).
		Status(http.StatusOK).
		Header("Cache-Control", "no-store").
		Assert(jsonpath.Present("$.access_token")).
		Assert(jsonpath.Present("$.refresh_token")).
		Assert(jsonpath.Equal("$.token_type", "Bearer")).
		Assert(jsonpath.Contains("$.capabilities", "profile:write")).
		End()
}

func TestLogin_FailuresLookAlike(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")

	for _, body := range []string{
		`{"username":"alice","password":"wrong"}`,
		`{"username":"nobody","password":"S3cret!"}`,
	} {
		apitest.New().
			Handler(srv.router).
			Post("/v1/sessions").
			JSON(body).
			Expect(t).
			Status(http.StatusUnauthorized).
			Body(`{"error":"invalid_credentials","error_description":"authentication failed"}`).
			End()
	}
}

func TestMe(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")
	access, refresh := srv.login(t, "alice", "S3cret!")

	apitest.New().
		Handler(srv.router).
		Get("/v1/me").
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error", "invalid_token")).
		End()

	apitest.New().
		Handler(srv.router).
		Get("/v1/me").
		Header("Authorization", bearer(refresh)).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	apitest.New().
		Handler(srv.router).
		Get("/v1/me").
		Header("Authorization", bearer(access)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.username", "alice")).
		Assert(jsonpath.Equal("$.mfa_enabled", false)).
		End()
}

func TestRoles_RequiresCapability(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")
	srv.register(t, "root", "S3cret!", "admin")
	userToken, _ := srv.login(t, "alice", "S3cret!")
	adminToken, _ := srv.login(t, "root", "S3cret!")

	apitest.New().
		Handler(srv.router).
		Get("/v1/roles").
		Header("Authorization", bearer(userToken)).
		Expect(t).
		Status(http.StatusForbidden).
		Header("WWW-Authenticate", `Bearer error="insufficient_scope", scope="roles:read"`).
		Assert(jsonpath.Equal("$.error", "insufficient_scope")).
		End()

	apitest.New().
		Handler(srv.router).
		Get("/v1/roles").
		Header("Authorization", bearer(adminToken)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$.roles", 2)).
		Assert(jsonpath.Equal("$.roles[0].name", "admin")).
		End()
}

func TestCreateUser(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")
	srv.register(t, "root", "S3cret!", "admin")
	userToken, _ := srv.login(t, "alice", "S3cret!")
	adminToken, _ := srv.login(t, "root", "S3cret!")

	body := `{"username":"bob","password":"S3cret!","role":"admin"}`

	apitest.New().
		Handler(srv.router).
		Post("/v1/users").
		Header("Authorization", bearer(userToken)).
		JSON(body).
		Expect(t).
		Status(http.StatusForbidden).
		End()

	apitest.New().
		Handler(srv.router).
		Post("/v1/users").
		Header("Authorization", bearer(adminToken)).
		JSON(body).
		Expect(t).
		Status(http.StatusCreated).
		Assert(jsonpath.Equal("$.username", "bob")).
		Assert(jsonpath.Equal("$.role", "admin")).
		End()

	apitest.New().
		Handler(srv.router).
		Post("/v1/users").
		Header("Authorization", bearer(adminToken)).
		JSON(`{"username":"carol","password":"S3cret!","role":"wizard"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}

func TestAuthorize(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")
	access, refresh := srv.login(t, "alice", "S3cret!")

	apitest.New().
		Handler(srv.router).
		Post("/v1/authorize").
		JSON(`{"token":"` + access + `","capability":"profile:read"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.allowed", true)).
		Assert(jsonpath.Equal("$.username", "alice")).
		Assert(jsonpath.Present("$.expires_at")).
		End()

	apitest.New().
		Handler(srv.router).
		Post("/v1/authorize").
		JSON(`{"token":"` + access + `","capability":"users:write"}`).
		Expect(t).
		Status(http.StatusForbidden).
		Assert(jsonpath.Equal("$.allowed", false)).
		End()

	apitest.New().
		Handler(srv.router).
		Post("/v1/authorize").
		JSON(`{"token":"` + refresh + `","capability":"profile:read"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error", "invalid_token")).
		End()

	apitest.New().
		Handler(srv.router).
		Post("/v1/authorize").
		JSON(`{"token":"` + access + `","capability":"Profile Read"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Present("$.details.capability")).
		End()
}

func TestRefresh(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")
	access, refresh := srv.login(t, "alice", "S3cret!")

	apitest.New().
		Handler(srv.router).
		Post("/v1/sessions/refresh").
		JSON(`{"refresh_token":"` + access + `"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error", "invalid_credentials")).
		End()

	apitest.New().
		Handler(srv.router).
		Post("/v1/sessions/refresh").
		JSON(`{"refresh_token":"` + refresh + `"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Present("$.access_token")).
		End()

	// Rotated: the same refresh token cannot be used twice.
	apitest.New().
		Handler(srv.router).
		Post("/v1/sessions/refresh").
		JSON(`{"refresh_token":"` + refresh + `"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")
	access, refresh := srv.login(t, "alice", "S3cret!")

	apitest.New().
		Handler(srv.router).
		Delete("/v1/sessions").
		Header("Authorization", bearer(access)).
		JSON(`{"refresh_token":"` + refresh + `"}`).
		Expect(t).
		Status(http.StatusNoContent).
		End()

	apitest.New().
		Handler(srv.router).
		Get("/v1/me").
		Header("Authorization", bearer(access)).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	_, err := srv.sessions.Refresh(context.Background(), refresh)
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestLogout_EmptyBody(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")
	access, _ := srv.login(t, "alice", "S3cret!")

	apitest.New().
		Handler(srv.router).
		Delete("/v1/sessions").
		Header("Authorization", bearer(access)).
		Expect(t).
		Status(http.StatusNoContent).
		End()
}

func TestChangePassword(t *testing.T) {
	srv := newTestServer(t, noLimits)
	srv.register(t, "alice", "S3cret!", "")
	access, _ := srv.login(t, "alice", "S3cret!")

	apitest.New().
		Handler(srv.router).
		Post("/v1/password").
		Header("Authorization", bearer(access)).
		JSON(`{"old_password":"wrong","new_password":"N3w!"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal("$.error", "invalid_credentials")).
		End()

	apitest.New().
		Handler(srv.router).
		Post("/v1/password").
		Header("Authorization", bearer(access)).
		JSON(`{"old_password":"S3cret!","new_password":"S3cret!"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Present("$.details.new_password")).
		End()

	apitest.New().
		Handler(srv.router).
		Post("/v1/password").
		Header("Authorization", bearer(access)).
		JSON(`{"old_password":"S3cret!","new_password":"N3w!"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Present("$.access_token")).
		End()

	// The token used for the change was revoked.
	apitest.New().
		Handler(srv.router).
		Get("/v1/me").
		Header("Authorization", bearer(access)).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	_, err := srv.sessions.Login(context.Background(), service.LoginParams{Username: "alice", Password: "N3w!"})
	require.NoError(t, err)
}

func TestRateLimit_Login(t *testing.T) {
	limits := authhttp.RateLimits{
		Credential: httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2},
	}
	srv := newTestServer(t, limits)

	for range 2 {
		apitest.New().
			Handler(srv.router).
			Post("/v1/sessions").
			JSON(`{"username":"alice","password":"wrong"}`).
			Expect(t).
			Status(http.StatusUnauthorized).
			End()
	}

	apitest.New().
		Handler(srv.router).
		Post("/v1/sessions").
		JSON(`{"username":"alice","password":"wrong"}`).
		Expect(t).
		Status(http.StatusTooManyRequests).
		Assert(jsonpath.Equal("$.error", "rate_limit_exceeded")).
		End()

	// Another username has its own bucket.
	apitest.New().
		Handler(srv.router).
		Post("/v1/sessions").
		JSON(`{"username":"bob","password":"wrong"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, noLimits)

	apitest.New().
		Handler(srv.router).
		Get("/livez").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.status", "ok")).
		Assert(jsonpath.Equal("$.version", "test")).
		End()

	apitest.New().
		Handler(srv.router).
		Get("/readyz").
		Expect(t).
		Status(http.StatusOK).
		End()

	require.NoError(t, srv.store.Close())

	apitest.New().
		Handler(srv.router).
		Get("/readyz").
		Expect(t).
		Status(http.StatusServiceUnavailable).
		Assert(jsonpath.Equal("$.status", "unavailable")).
		End()
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, noLimits)

	res := apitest.New().
		Handler(srv.router).
		Get("/livez").
		Expect(t).
		Status(http.StatusOK).
		End()
	require.Len(t, res.Response.Header.Get("X-Request-ID"), 26)
}
