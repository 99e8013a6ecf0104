package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrMFAAlreadyEnabled = errors.New("mfa_already_enabled")
	ErrMFANotEnrolled    = errors.New("mfa_not_enrolled")
	ErrMFANotEnabled     = errors.New("mfa_not_enabled")
)

const (
	totpPeriod = 30
	totpSkew   = 1 // accept one step either side
)

// TOTPVerifier checks time-based one-time passwords. A nil verifier uses the
// wall clock.
type TOTPVerifier struct {
	Clock func() time.Time
}

func (v *TOTPVerifier) now() time.Time {
	if v != nil && v.Clock != nil {
		return v.Clock()
	}
	return time.Now()
}

// Validate reports whether code is valid for secret at the current time,
// allowing one step of skew either way. Used codes are not remembered, so a
// code can be replayed until its window closes.
func (v *TOTPVerifier) Validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, v.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Enrollment is a pending TOTP secret and its otpauth:// URL.
type Enrollment struct {
	Secret string
	URL    string
}

type MFAService struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher
	TOTP   *TOTPVerifier
	Issuer string // shown in authenticator apps
}

// EnrollTOTP generates a secret for the user. MFA is not enforced until the
// user proves possession with ConfirmTOTP. Enrolling again replaces a
// pending secret.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID string) (Enrollment, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return Enrollment{}, mapUserErr(err)
	}
	if u.TOTPEnabled() {
		return Enrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.Store.Users().SetMFASecret(ctx, userID, key.Secret(), s.TOTP.now()); err != nil {
		return Enrollment{}, mapUserErr(err)
	}
	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// ConfirmTOTP enables MFA once the user shows a valid code for the pending
// secret.
func (s *MFAService) ConfirmTOTP(ctx context.Context, userID, code string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return mapUserErr(err)
	}
	switch {
	case u.TOTPEnabled():
		return ErrMFAAlreadyEnabled
	case u.MFASecret == nil || *u.MFASecret == "":
		return ErrMFANotEnrolled
	}

	if !s.TOTP.Validate(code, *u.MFASecret) {
		return ErrInvalidCredentials
	}

	if err := s.Store.Users().EnableMFA(ctx, userID, s.TOTP.now()); err != nil {
		return mapUserErr(err)
	}
	slogx.FromContext(ctx).Info("totp enabled", slog.String("user_id", userID))
	return nil
}

// DisableTOTP turns MFA off after re-checking the password.
func (s *MFAService) DisableTOTP(ctx context.Context, userID, password string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return mapUserErr(err)
	}
	if err := s.Hasher.Verify(ctx, password, u.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if !u.TOTPEnabled() {
		return ErrMFANotEnabled
	}

	if err := s.Store.Users().DisableMFA(ctx, userID, s.TOTP.now()); err != nil {
		return mapUserErr(err)
	}
	slogx.FromContext(ctx).Info("totp disabled", slog.String("user_id", userID))
	return nil
}

func mapUserErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrMFANotEnrolled
	default:
		return storeErr("users", err)
	}
}
