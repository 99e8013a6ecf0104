package http

import (
	"net/http"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
)

type MFAHandler struct {
	MFA *service.MFAService
}

// HandleEnroll starts TOTP enrollment for the caller.
// POST /v1/mfa/totp/enroll -> 200 TOTPEnrollResponse
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	e, err := h.MFA.EnrollTOTP(r.Context(), httpx.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{Secret: e.Secret, URL: e.URL})
}

// HandleConfirm enables TOTP once the caller proves the secret works.
// POST /v1/mfa/totp/confirm -> 204
func (h *MFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TOTPConfirmRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.MFA.ConfirmTOTP(r.Context(), httpx.UserID(r.Context()), req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable turns TOTP off after re-checking the password.
// DELETE /v1/mfa/totp -> 204
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TOTPDisableRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.MFA.DisableTOTP(r.Context(), httpx.UserID(r.Context()), req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
