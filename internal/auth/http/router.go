package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// RateLimits groups the limiter profiles applied per route class.
type RateLimits struct {
	Credential httpx.RateLimitConfig `yaml:"credential"`
	Session    httpx.RateLimitConfig `yaml:"session"`
	Decision   httpx.RateLimitConfig `yaml:"decision"`
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		Credential: httpx.CredentialLimit,
		Session:    httpx.SessionLimit,
		Decision:   httpx.DecisionLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	version string
	logger  *slog.Logger
	store   store.Store

	Sessions *service.SessionManager
	Gate     *service.AccessGate
	Roles    *service.RolesService
	MFA      *service.MFAService
	Limits   RateLimits

	// Clock is used for expires_in; defaults to time.Now.
	Clock func() time.Time
}

func NewRouter(st store.Store, version string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:     http.NewServeMux(),
		version: version,
		logger:  logger,
		store:   st,
		Limits:  DefaultRateLimits(),
		Clock:   time.Now,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}
	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSessions()
	r.registerDecisions()
	r.registerUsers()
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) authn() httpx.Middleware { return httpx.Authn(r.Gate) }

func (r *Router) registerSessions() {
	h := &SessionsHandler{Sessions: r.Sessions, Clock: r.Clock}

	// Password endpoints are limited per IP and username to slow guessing.
	r.Mux.Handle("POST /v1/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIPAndJSONField(r.Limits.Credential, "username"),
		),
	)
	r.Mux.Handle("POST /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(r.Limits.Credential, "username"),
		),
	)
	r.Mux.Handle("POST /v1/sessions/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.Limits.Session),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.authn(),
			httpx.RateLimitByUser(r.Limits.Session),
		),
	)
	r.Mux.Handle("POST /v1/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			r.authn(),
			httpx.RequireCapability(domain.CapProfileWrite),
			httpx.RateLimitByUser(r.Limits.Credential),
		),
	)
}

func (r *Router) registerDecisions() {
	h := &AuthorizeHandler{Gate: r.Gate}

	r.Mux.Handle("POST /v1/authorize",
		httpx.Chain(h,
			httpx.RateLimitByIP(r.Limits.Decision),
		),
	)
}

func (r *Router) registerUsers() {
	me := &MeHandler{Sessions: r.Sessions}
	r.Mux.Handle("GET /v1/me",
		httpx.Chain(me,
			r.authn(),
			httpx.RequireCapability(domain.CapProfileRead),
			httpx.RateLimitByUser(r.Limits.Session),
		),
	)

	users := &UsersHandler{Sessions: r.Sessions}
	r.Mux.Handle("POST /v1/users",
		httpx.Chain(users,
			r.authn(),
			httpx.RequireCapability(domain.CapUsersWrite),
			httpx.RateLimitByUser(r.Limits.Session),
		),
	)

	roles := &RolesHandler{Roles: r.Roles}
	r.Mux.Handle("GET /v1/roles",
		httpx.Chain(roles,
			r.authn(),
			httpx.RequireCapability(domain.CapRolesRead),
			httpx.RateLimitByUser(r.Limits.Session),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFA: r.MFA}

	r.Mux.Handle("POST /v1/mfa/totp/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			r.authn(),
			httpx.RateLimitByUser(r.Limits.Session),
		),
	)
	// Confirm and disable check a code or password, so they get the strict profile.
	r.Mux.Handle("POST /v1/mfa/totp/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			r.authn(),
			httpx.RateLimitByUser(r.Limits.Credential),
		),
	)
	r.Mux.Handle("DELETE /v1/mfa/totp",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			r.authn(),
			httpx.RateLimitByUser(r.Limits.Credential),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.version))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.store))
}
