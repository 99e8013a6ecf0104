package http

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

type SessionsHandler struct {
	Sessions *service.SessionManager
	Clock    func() time.Time
}

// HandleRegister creates an account with the default role.
// POST /v1/register -> 201 UserInfo
func (h *SessionsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	u, err := h.Sessions.Register(r.Context(), service.RegisterParams{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	p, err := h.Sessions.Principal(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userInfo(p))
}

// HandleLogin exchanges a username and password for a token pair.
// POST /v1/sessions -> 200 TokenResponse
func (h *SessionsHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	pair, err := h.Sessions.Login(r.Context(), service.LoginParams{
		Username: req.Username,
		Password: req.Password,
		OTP:      req.OTP,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.tokenResponse(pair))
}

// HandleRefresh trades a refresh token for a new pair.
// POST /v1/sessions/refresh -> 200 TokenResponse
func (h *SessionsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	pair, err := h.Sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.tokenResponse(pair))
}

// HandleLogout revokes the bearer token and, if given, the refresh token.
// DELETE /v1/sessions -> 204
func (h *SessionsHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	ctx := r.Context()
	userID := httpx.UserID(ctx)

	if err := h.Sessions.LogoutSubject(ctx, userID, httpx.TokenFromContext(ctx)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.RefreshToken != "" {
		err := h.Sessions.LogoutSubject(ctx, userID, req.RefreshToken)
		if err != nil && !errors.Is(err, service.ErrInvalidToken) {
			writeServiceError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangePassword replaces the caller's password and returns a new pair.
// The access token used for the call is revoked.
// POST /v1/password -> 200 TokenResponse
func (h *SessionsHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ChangePasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ctx := r.Context()
	userID := httpx.UserID(ctx)

	pair, err := h.Sessions.ChangePassword(ctx, service.ChangePasswordParams{
		UserID:      userID,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.Sessions.LogoutSubject(ctx, userID, httpx.TokenFromContext(ctx)); err != nil {
		slogx.FromContext(ctx).Warn("old access token not revoked", slog.Any("error", err))
	}
	httpx.WriteJSON(w, http.StatusOK, h.tokenResponse(pair))
}

func (h *SessionsHandler) tokenResponse(pair domain.TokenPair) authsdk.TokenResponse {
	now := time.Now()
	if h.Clock != nil {
		now = h.Clock()
	}
	caps := pair.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return authsdk.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        secondsUntil(now, pair.AccessExpiresAt),
		RefreshExpiresIn: secondsUntil(now, pair.RefreshExpiresAt),
		Capabilities:     caps,
	}
}

func secondsUntil(now, t time.Time) int {
	return max(0, int(math.Round(t.Sub(now).Seconds())))
}

func userInfo(p domain.Principal) authsdk.UserInfo {
	caps := p.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return authsdk.UserInfo{
		ID:           p.UserID,
		Username:     p.Username,
		Role:         p.Role,
		Capabilities: caps,
		MFAEnabled:   p.MFAEnabled,
		CreatedAt:    p.CreatedAt,
	}
}
