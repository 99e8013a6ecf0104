package http

import (
	"net/http"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
)

// AuthorizeHandler is the decision endpoint for other services. It answers
// 200 when allowed, 403 when the token lacks the capability and 401 when the
// token is not valid at all.
type AuthorizeHandler struct {
	Gate *service.AccessGate
}

// POST /v1/authorize
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AuthorizeRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	d := h.Gate.Authorize(r.Context(), req.Token, req.Capability)
	if d.Claims == nil {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	resp := authsdk.AuthorizeResponse{
		Allowed:   d.Allowed,
		Subject:   d.Claims.Subject,
		Username:  d.Claims.Username,
		ExpiresAt: d.Claims.ExpiresAtTime(),
	}
	status := http.StatusOK
	if !d.Allowed {
		status = http.StatusForbidden
	}
	httpx.WriteJSON(w, status, resp)
}
