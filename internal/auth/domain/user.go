package domain

import "time"

// User is the credential record for a principal. Username is unique and ID
// never changes once assigned.
type User struct {
	ID           string
	Username     string
	PasswordHash string // argon2id PHC string, or bcrypt for imported records
	RoleID       string // Foreign key to roles table

	// PasswordChangedAt is the last time PasswordHash was replaced by the
	// user. Refresh tokens issued before it are rejected.
	PasswordChangedAt time.Time

	MFASecret  *string    // TOTP secret, base32 (set during enrollment)
	MFAEnabled *time.Time // When TOTP was confirmed, nil when off

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TOTPEnabled reports whether login requires a one-time password.
func (u User) TOTPEnabled() bool {
	return u.MFAEnabled != nil && u.MFASecret != nil && *u.MFASecret != ""
}
