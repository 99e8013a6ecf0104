package authsdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestAPIError_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authsdk.ErrInvalidCredentials.WriteError(w)
	}))
	defer srv.Close()

	client := authsdk.NewSDKClient(srv.URL + "/")
	_, err := client.Login(context.Background(), authsdk.LoginRequest{Username: "alice", Password: "nope"})
	require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)
	require.False(t, errors.Is(err, authsdk.ErrInvalidToken))

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestAPIError_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := authsdk.NewSDKClient(srv.URL).GetLiveness(context.Background())
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeServerError, apiErr.Code)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestAPIError_WithDetails(t *testing.T) {
	e := authsdk.ErrInvalidRequest.WithDetails(map[string]string{"username": "required"})
	require.Equal(t, "required", e.Details["username"])
	require.Nil(t, authsdk.ErrInvalidRequest.Details, "predefined error is not mutated")
	require.ErrorIs(t, e, authsdk.ErrInvalidRequest)
}

func TestSession_RefreshesExpiredAccessToken(t *testing.T) {
	var refreshes atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		// ExpiresIn 0 forces a refresh before the first authenticated call.
		httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
			AccessToken: "access-1", RefreshToken: "refresh-1", TokenType: "Bearer", ExpiresIn: 0,
		})
	})
	mux.HandleFunc("POST /v1/sessions/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.RefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "refresh-1", req.RefreshToken)
		refreshes.Add(1)
		httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
			AccessToken: "access-2", RefreshToken: "refresh-2", TokenType: "Bearer", ExpiresIn: 900,
			Capabilities: []string{"profile:read"},
		})
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			authsdk.ErrInvalidToken.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.UserInfo{ID: "u1", Username: "alice"})
	})
	mux.HandleFunc("DELETE /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.LogoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "refresh-2", req.RefreshToken)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	session, err := authsdk.NewSDKClient(srv.URL).AuthenticateWithPassword(ctx, "alice", "S3cret!", "")
	require.NoError(t, err)
	require.False(t, session.HasCapability("profile:read"))

	me, err := session.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", me.Username)
	require.Equal(t, int32(1), refreshes.Load())
	require.True(t, session.HasCapability("profile:read"))

	_, err = session.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(1), refreshes.Load(), "fresh token is reused")

	require.NoError(t, session.Logout(ctx))
	require.Empty(t, session.AccessToken())
	require.Empty(t, session.RefreshToken())
}
