package authsdk

import "time"

// ============================================================================
// Session Types
// ============================================================================

// RegisterRequest is the body of POST /v1/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateUserRequest is the body of POST /v1/users. Unlike self registration
// an administrator may choose the role.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// LoginRequest is the body of POST /v1/sessions.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`

	// OTP is the current TOTP code, required once TOTP is enabled.
	OTP string `json:"otp,omitempty"`
}

// RefreshRequest is the body of POST /v1/sessions/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest is the optional body of DELETE /v1/sessions. The access token
// in the Authorization header is always revoked; a refresh token given here
// is revoked as well.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ChangePasswordRequest is the body of POST /v1/password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int `json:"expires_in"`

	// RefreshExpiresIn is the refresh token lifetime in seconds
	RefreshExpiresIn int `json:"refresh_expires_in"`

	// Capabilities granted to the access token
	Capabilities []string `json:"capabilities"`
}

// ============================================================================
// Decision Types
// ============================================================================

// AuthorizeRequest is the body of POST /v1/authorize, used by other services
// to ask whether a token grants a capability.
type AuthorizeRequest struct {
	Token      string `json:"token"`
	Capability string `json:"capability"`
}

// AuthorizeResponse is the decision. Subject fields are only set when the
// token itself was valid.
type AuthorizeResponse struct {
	Allowed   bool      `json:"allowed"`
	Subject   string    `json:"sub,omitempty"`
	Username  string    `json:"username,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// ============================================================================
// User & Role Types
// ============================================================================

// UserInfo describes the authenticated principal (GET /v1/me) or a newly
// created account (POST /v1/register, POST /v1/users).
type UserInfo struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	Capabilities []string  `json:"capabilities"`
	MFAEnabled   bool      `json:"mfa_enabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// RoleInfo is one entry of GET /v1/roles.
type RoleInfo struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// RoleListResponse is the body of GET /v1/roles.
type RoleListResponse struct {
	Roles []RoleInfo `json:"roles"`
}

// ============================================================================
// MFA Types
// ============================================================================

// TOTPEnrollResponse carries the new secret and an otpauth:// URL for QR codes.
type TOTPEnrollResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// TOTPConfirmRequest activates a pending TOTP enrollment.
type TOTPConfirmRequest struct {
	Code string `json:"code"`
}

// TOTPDisableRequest turns TOTP off; requires the password again.
type TOTPDisableRequest struct {
	Password string `json:"password"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
