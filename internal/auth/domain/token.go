package domain

import "time"

// TokenPair is what login, refresh and password change hand back: a short
// lived access token and a longer lived refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Capabilities     []string
}

// Principal is the current view of an authenticated user.
type Principal struct {
	UserID       string
	Username     string
	Role         string
	Capabilities []string
	MFAEnabled   bool
	CreatedAt    time.Time
}
