package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// Revoker is the optional denylist consulted on refresh and by the access
// gate. Without one, tokens stay valid until they expire.
type Revoker interface {
	Revoke(ctx context.Context, jti string, exp time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// SessionManager registers principals and issues, renews and retires their
// tokens. It keeps no per-session state; everything it needs is in the
// store or in the token itself.
type SessionManager struct {
	Store   store.Store
	Hasher  *cryptox.PasswordHasher
	Codec   *jwtx.Codec
	Revoker Revoker // optional
	TOTP    *TOTPVerifier

	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	DefaultRole string

	// Clock defaults to time.Now.
	Clock func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type RegisterParams struct {
	Username string
	Password string
	Role     string // empty means DefaultRole
}

type LoginParams struct {
	Username string
	Password string
	OTP      string
}

type ChangePasswordParams struct {
	UserID      string
	OldPassword string
	NewPassword string
}

func (m *SessionManager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *SessionManager) accessTTL() time.Duration {
	if m.AccessTTL > 0 {
		return m.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (m *SessionManager) refreshTTL() time.Duration {
	if m.RefreshTTL > 0 {
		return m.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// Register creates a credential record. The store's unique constraint on the
// username decides between concurrent registrations, so exactly one wins.
// The operation runs to completion even if the caller goes away.
func (m *SessionManager) Register(ctx context.Context, p RegisterParams) (domain.User, error) {
	ctx = context.WithoutCancel(ctx)
	l := slogx.FromContext(ctx)

	if !authsdk.ValidUsername(p.Username) {
		return domain.User{}, invalidRequest("invalid username")
	}
	if err := checkPassword(p.Password); err != nil {
		return domain.User{}, err
	}

	roleName := p.Role
	if roleName == "" {
		roleName = m.DefaultRole
	}
	role, err := m.Store.Roles().GetRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, invalidRequest("unknown role %q", roleName)
		}
		return domain.User{}, storeErr("get role", err)
	}

	hash, err := m.Hasher.Hash(ctx, p.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := m.now()
	u := domain.User{
		ID:                idx.NewAt(now).String(),
		Username:          p.Username,
		PasswordHash:      hash,
		RoleID:            role.ID,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrAlreadyExists
		}
		return domain.User{}, storeErr("create user", err)
	}

	l.Info("user registered",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
		slog.String("role", role.Name),
	)
	return u, nil
}

// Login checks a username and password (plus a one-time password when TOTP
// is enabled) and returns a fresh token pair. Unknown users and wrong
// passwords are indistinguishable, both in the error and in the time taken.
func (m *SessionManager) Login(ctx context.Context, p LoginParams) (domain.TokenPair, error) {
	ctx = context.WithoutCancel(ctx)
	l := slogx.FromContext(ctx)

	u, err := m.Store.Users().GetUserByUsername(ctx, p.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Pay for one verification so timing does not reveal the miss.
			_ = m.Hasher.Verify(ctx, p.Password, m.dummy(ctx))
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, storeErr("get user", err)
	}

	if err := m.Hasher.Verify(ctx, p.Password, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrInvalidHash) {
			l.Warn("stored password hash is malformed", slog.String("user_id", u.ID))
		}
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	if u.TOTPEnabled() {
		if p.OTP == "" {
			return domain.TokenPair{}, ErrMFARequired
		}
		if !m.TOTP.Validate(p.OTP, *u.MFASecret) {
			return domain.TokenPair{}, ErrInvalidCredentials
		}
	}

	if m.Hasher.NeedsRehash(u.PasswordHash) {
		m.rehash(ctx, u, p.Password)
	}

	role, err := m.Store.Roles().GetRoleByID(ctx, u.RoleID)
	if err != nil {
		return domain.TokenPair{}, storeErr("get role", err)
	}

	pair, err := m.issuePair(u, role)
	if err != nil {
		return domain.TokenPair{}, err
	}
	l.Info("user logged in", slog.String("user_id", u.ID))
	return pair, nil
}

// rehash upgrades a legacy or weak hash. Failure only costs another attempt
// on the next login.
func (m *SessionManager) rehash(ctx context.Context, u domain.User, password string) {
	l := slogx.FromContext(ctx)

	newHash, err := m.Hasher.Hash(ctx, password)
	if err != nil {
		l.Warn("password rehash failed", slog.String("user_id", u.ID), slog.Any("error", err))
		return
	}
	err = m.Store.Users().UpdatePasswordHash(ctx, store.PasswordUpdate{
		UserID:       u.ID,
		ExpectedHash: u.PasswordHash,
		NewHash:      newHash,
		UpdatedAt:    m.now(),
	})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		l.Warn("password rehash not stored", slog.String("user_id", u.ID), slog.Any("error", err))
		return
	}
	l.Debug("password hash upgraded", slog.String("user_id", u.ID))
}

// Refresh trades a refresh token for a new pair. The user and role are
// loaded again so capability changes take effect now, not at next login.
// Tokens issued before the last password change are refused, and the
// presented token is revoked when a denylist is configured.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	ctx = context.WithoutCancel(ctx)
	l := slogx.FromContext(ctx)

	claims, err := m.Codec.Verify(refreshToken, jwtx.UseRefresh)
	if err != nil {
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	if m.Revoker != nil {
		revoked, err := m.Revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return domain.TokenPair{}, storeErr("check revocation", err)
		}
		if revoked {
			l.Warn("revoked refresh token presented", slog.String("user_id", claims.Subject))
			return domain.TokenPair{}, ErrInvalidCredentials
		}
	}

	u, err := m.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, storeErr("get user", err)
	}

	// Any password change since issue moves the stamp.
	if claims.CredentialStamp != credentialStamp(u) {
		l.Info("refresh token predates password change", slog.String("user_id", u.ID))
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	role, err := m.Store.Roles().GetRoleByID(ctx, u.RoleID)
	if err != nil {
		return domain.TokenPair{}, storeErr("get role", err)
	}

	if m.Revoker != nil {
		if err := m.Revoker.Revoke(ctx, claims.ID, claims.ExpiresAtTime()); err != nil {
			return domain.TokenPair{}, storeErr("revoke refresh token", err)
		}
	}

	return m.issuePair(u, role)
}

// ChangePassword replaces the password after re-proving the old one. The
// write is a compare-and-swap on the hash that was verified, so of two racing
// changes only one succeeds. Refresh tokens issued earlier stop working; the
// returned pair replaces them.
func (m *SessionManager) ChangePassword(ctx context.Context, p ChangePasswordParams) (domain.TokenPair, error) {
	ctx = context.WithoutCancel(ctx)
	l := slogx.FromContext(ctx)

	if err := checkPassword(p.NewPassword); err != nil {
		return domain.TokenPair{}, err
	}

	u, err := m.Store.Users().GetUserByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, storeErr("get user", err)
	}

	if err := m.Hasher.Verify(ctx, p.OldPassword, u.PasswordHash); err != nil {
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	newHash, err := m.Hasher.Hash(ctx, p.NewPassword)
	if err != nil {
		return domain.TokenPair{}, err
	}

	// The stamp must move even when two changes land in the same millisecond.
	now := m.now()
	if last := u.PasswordChangedAt.Truncate(time.Millisecond); !now.Truncate(time.Millisecond).After(last) {
		now = last.Add(time.Millisecond)
	}
	err = m.Store.Users().UpdatePasswordHash(ctx, store.PasswordUpdate{
		UserID:       u.ID,
		ExpectedHash: u.PasswordHash,
		NewHash:      newHash,
		UpdatedAt:    now,
		Rotated:      true,
	})
	switch {
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotFound):
		l.Warn("password change lost a race", slog.String("user_id", u.ID))
		return domain.TokenPair{}, ErrInvalidCredentials
	case err != nil:
		return domain.TokenPair{}, storeErr("update password", err)
	}
	u.PasswordHash = newHash
	u.PasswordChangedAt = now

	role, err := m.Store.Roles().GetRoleByID(ctx, u.RoleID)
	if err != nil {
		return domain.TokenPair{}, storeErr("get role", err)
	}

	l.Info("password changed", slog.String("user_id", u.ID))
	return m.issuePair(u, role)
}

// Logout revokes an access or refresh token until it expires. Without a
// denylist it only validates the token.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	return m.logout(ctx, "", token)
}

// LogoutSubject is Logout restricted to tokens issued to userID, so one user
// cannot revoke another's session.
func (m *SessionManager) LogoutSubject(ctx context.Context, userID, token string) error {
	if userID == "" {
		return ErrInvalidToken
	}
	return m.logout(ctx, userID, token)
}

func (m *SessionManager) logout(ctx context.Context, userID, token string) error {
	claims, err := m.Codec.Verify(token, jwtx.UseAccess)
	if err != nil {
		claims, err = m.Codec.Verify(token, jwtx.UseRefresh)
		if err != nil {
			return ErrInvalidToken
		}
	}
	if userID != "" && claims.Subject != userID {
		return ErrInvalidToken
	}
	if m.Revoker == nil {
		return nil
	}
	if err := m.Revoker.Revoke(context.WithoutCancel(ctx), claims.ID, claims.ExpiresAtTime()); err != nil {
		return storeErr("revoke token", err)
	}
	slogx.FromContext(ctx).Debug("token revoked", slog.String("user_id", claims.Subject), slog.String("use", string(claims.Use)))
	return nil
}

// Principal returns the current view of a user, with capabilities as the
// role grants them now.
func (m *SessionManager) Principal(ctx context.Context, userID string) (domain.Principal, error) {
	u, err := m.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Principal{}, ErrNotFound
		}
		return domain.Principal{}, storeErr("get user", err)
	}
	role, err := m.Store.Roles().GetRoleByID(ctx, u.RoleID)
	if err != nil {
		return domain.Principal{}, storeErr("get role", err)
	}
	return domain.Principal{
		UserID:       u.ID,
		Username:     u.Username,
		Role:         role.Name,
		Capabilities: role.Capabilities,
		MFAEnabled:   u.TOTPEnabled(),
		CreatedAt:    u.CreatedAt,
	}, nil
}

func (m *SessionManager) issuePair(u domain.User, role domain.Role) (domain.TokenPair, error) {
	access, accessClaims, err := m.Codec.Issue(jwtx.IssueParams{
		Subject:      u.ID,
		Username:     u.Username,
		Capabilities: role.Capabilities,
		Use:          jwtx.UseAccess,
		TTL:          m.accessTTL(),
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, refreshClaims, err := m.Codec.Issue(jwtx.IssueParams{
		Subject:         u.ID,
		Username:        u.Username,
		Use:             jwtx.UseRefresh,
		TTL:             m.refreshTTL(),
		CredentialStamp: credentialStamp(u),
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAtTime(),
		RefreshExpiresAt: refreshClaims.ExpiresAtTime(),
		Capabilities:     accessClaims.Capabilities,
	}, nil
}

// credentialStamp changes on every password change and survives a store
// round trip (timestamps are kept at millisecond precision).
func credentialStamp(u domain.User) int64 {
	return u.PasswordChangedAt.UnixMilli()
}

// Warm precomputes the dummy hash used for unknown users so the first
// failed login is not slower than the rest.
func (m *SessionManager) Warm(ctx context.Context) {
	_ = m.dummy(ctx)
}

// dummy returns a hash with the current parameters for timing equalisation.
// It is computed once, on first use. Users still on an imported bcrypt hash
// fail at bcrypt speed instead, which this does not hide.
func (m *SessionManager) dummy(ctx context.Context) string {
	m.dummyOnce.Do(func() {
		secret, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			secret = "dummy-password"
		}
		m.dummyHash, _ = m.Hasher.Hash(ctx, secret)
	})
	return m.dummyHash
}

func checkPassword(pw string) error {
	switch {
	case pw == "":
		return invalidRequest("password is required")
	case len(pw) > authsdk.MaxPasswordLength:
		return invalidRequest("password is too long")
	}
	return nil
}
