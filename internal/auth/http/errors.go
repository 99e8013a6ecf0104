package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// writeServiceError maps service errors onto API errors. Store failures and
// anything unexpected are logged; the body stays generic.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		authsdk.ErrInvalidRequest.WriteError(w)
	case errors.Is(err, service.ErrAlreadyExists):
		authsdk.ErrAlreadyExists.WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrInvalidToken):
		authsdk.ErrInvalidToken.WriteError(w)
	case errors.Is(err, service.ErrMFARequired):
		authsdk.ErrMFARequired.WriteError(w)
	case errors.Is(err, service.ErrNotFound):
		authsdk.ErrNotFound.WriteError(w)
	case errors.Is(err, service.ErrMFAAlreadyEnabled),
		errors.Is(err, service.ErrMFANotEnrolled),
		errors.Is(err, service.ErrMFANotEnabled):
		authsdk.ErrConflict.WriteError(w)
	case errors.Is(err, service.ErrStoreUnavailable):
		slogx.FromContext(r.Context()).Error("store unavailable", slog.Any("error", err))
		authsdk.ErrUnavailable.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
		authsdk.ErrServerError.WriteError(w)
	}
}

type validator interface {
	Validate() map[string]string
}

// decodeRequest decodes and validates a JSON body, writing invalid_request
// on failure. It reports whether the handler should continue.
func decodeRequest(w http.ResponseWriter, r *http.Request, v validator) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		authsdk.ErrInvalidRequest.WithDetails(map[string]string{"body": "malformed JSON"}).WriteError(w)
		return false
	}
	if errs := v.Validate(); errs != nil {
		authsdk.ErrInvalidRequest.WithDetails(errs).WriteError(w)
		return false
	}
	return true
}

// decodeOptional is decodeRequest for bodies that may be absent.
func decodeOptional(w http.ResponseWriter, r *http.Request, v validator) bool {
	err := httpx.DecodeJSON(w, r, v)
	switch {
	case errors.Is(err, io.EOF):
		return true
	case err != nil:
		authsdk.ErrInvalidRequest.WithDetails(map[string]string{"body": "malformed JSON"}).WriteError(w)
		return false
	}
	if errs := v.Validate(); errs != nil {
		authsdk.ErrInvalidRequest.WithDetails(errs).WriteError(w)
		return false
	}
	return true
}
