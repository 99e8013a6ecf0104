package authsdk

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"
)

// refreshBuffer is how long before expiry a Session refreshes proactively.
const refreshBuffer = 30 * time.Second

// Session holds a token pair and refreshes the access token when it is about
// to expire. It is safe for concurrent use.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	capabilities []string
}

// NewSessionFromTokens wraps tokens obtained elsewhere.
func (c *SDKClient) NewSessionFromTokens(tokens *TokenResponse) *Session {
	s := &Session{client: c}
	s.update(tokens)
	return s
}

func (s *Session) update(tokens *TokenResponse) {
	ttl := time.Duration(tokens.ExpiresIn) * time.Second
	buffer := min(refreshBuffer, ttl/2)

	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = time.Now().Add(ttl - buffer)
	s.capabilities = slices.Clone(tokens.Capabilities)
}

// getValidToken returns the access token, refreshing first if it expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", errors.New("authsdk: access token expired and no refresh token available")
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", err
	}
	s.update(tokens)
	return s.accessToken, nil
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// HasCapability reports whether the current access token grants capability.
func (s *Session) HasCapability(capability string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.capabilities, capability)
}

// Me returns the authenticated principal.
func (s *Session) Me(ctx context.Context) (*UserInfo, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	var out UserInfo
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/me", token, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword rotates the password. Refresh tokens issued before the
// change stop working, so the session adopts the fresh pair returned.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}

	var out TokenResponse
	req := ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/password", token, req, &out, http.StatusOK); err != nil {
		return err
	}

	s.mu.Lock()
	s.update(&out)
	s.mu.Unlock()
	return nil
}

// Logout revokes both tokens server side and clears them locally.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := LogoutRequest{RefreshToken: s.refreshToken}
	err := s.client.doJSON(ctx, http.MethodDelete, "/v1/sessions", s.accessToken, req, nil, http.StatusNoContent)
	if err != nil {
		return err
	}

	s.accessToken = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
	s.capabilities = nil
	return nil
}

// CreateUser creates an account with an explicit role (users:write).
func (s *Session) CreateUser(ctx context.Context, req CreateUserRequest) (*UserInfo, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	var out UserInfo
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/users", token, req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRoles returns every role and its capabilities (roles:read).
func (s *Session) ListRoles(ctx context.Context) ([]RoleInfo, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	var out RoleListResponse
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/roles", token, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Roles, nil
}

// EnrollTOTP starts TOTP enrollment. The returned secret is not active until
// ConfirmTOTP succeeds.
func (s *Session) EnrollTOTP(ctx context.Context) (*TOTPEnrollResponse, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	var out TOTPEnrollResponse
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/mfa/totp/enroll", token, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmTOTP activates enrollment with a code from the authenticator app.
func (s *Session) ConfirmTOTP(ctx context.Context, code string) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}
	req := TOTPConfirmRequest{Code: code}
	return s.client.doJSON(ctx, http.MethodPost, "/v1/mfa/totp/confirm", token, req, nil, http.StatusNoContent)
}

// DisableTOTP removes the second factor after re-checking the password.
func (s *Session) DisableTOTP(ctx context.Context, password string) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}
	req := TOTPDisableRequest{Password: password}
	return s.client.doJSON(ctx, http.MethodDelete, "/v1/mfa/totp", token, req, nil, http.StatusNoContent)
}
