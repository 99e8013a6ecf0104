package authsdk

import (
	"regexp"
	"strings"
)

const (
	requiredReason = "required"
	onlyNameChars  = "must only contain a-z, A-Z, 0-9, '.', '_' or '-'"

	// MaxPasswordLength bounds the work an attacker can push into the hasher.
	MaxPasswordLength = 1024
)

var (
	reName       = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	reCapability = regexp.MustCompile(`^[a-z][a-z0-9._-]*:[a-z][a-z0-9._-]*$`)
	reOTP        = regexp.MustCompile(`^[0-9]{6}$`)
)

// ValidUsername reports whether s is an acceptable username.
func ValidUsername(s string) bool {
	return len(s) >= 3 && len(s) <= 64 && reName.MatchString(s)
}

// ValidRoleName reports whether s is an acceptable role name.
func ValidRoleName(s string) bool {
	return len(s) >= 1 && len(s) <= 32 && reName.MatchString(s)
}

// ValidCapability reports whether s looks like "resource:action".
func ValidCapability(s string) bool {
	return len(s) <= 64 && reCapability.MatchString(s)
}

// Validate returns a map of field names to error messages, or nil if the
// request is valid.
func (r RegisterRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateNewUsername(errs, "username", r.Username)
	validateNewPassword(errs, "password", r.Password)
	return nilIfEmpty(errs)
}

func (r CreateUserRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateNewUsername(errs, "username", r.Username)
	validateNewPassword(errs, "password", r.Password)
	if r.Role != "" && !ValidRoleName(r.Role) {
		errs["role"] = onlyNameChars
	}
	return nilIfEmpty(errs)
}

// Validate only checks presence. Login must not reveal username rules that
// would let a caller tell "no such user" apart from "wrong password".
func (r LoginRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(r.Username) == "" {
		errs["username"] = requiredReason
	}
	if r.Password == "" {
		errs["password"] = requiredReason
	} else if len(r.Password) > MaxPasswordLength {
		errs["password"] = "too long"
	}
	if r.OTP != "" && !reOTP.MatchString(r.OTP) {
		errs["otp"] = "must be 6 digits"
	}
	return nilIfEmpty(errs)
}

func (r RefreshRequest) Validate() map[string]string {
	if strings.TrimSpace(r.RefreshToken) == "" {
		return map[string]string{"refresh_token": requiredReason}
	}
	return nil
}

func (r ChangePasswordRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.OldPassword == "" {
		errs["old_password"] = requiredReason
	}
	validateNewPassword(errs, "new_password", r.NewPassword)
	if _, bad := errs["new_password"]; !bad && r.NewPassword == r.OldPassword {
		errs["new_password"] = "must differ from the old password"
	}
	return nilIfEmpty(errs)
}

func (r AuthorizeRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(r.Token) == "" {
		errs["token"] = requiredReason
	}
	switch {
	case r.Capability == "":
		errs["capability"] = requiredReason
	case !ValidCapability(r.Capability):
		errs["capability"] = "must look like resource:action"
	}
	return nilIfEmpty(errs)
}

func (r TOTPConfirmRequest) Validate() map[string]string {
	if !reOTP.MatchString(r.Code) {
		return map[string]string{"code": "must be 6 digits"}
	}
	return nil
}

func (r TOTPDisableRequest) Validate() map[string]string {
	if r.Password == "" {
		return map[string]string{"password": requiredReason}
	}
	return nil
}

func validateNewUsername(errs map[string]string, field, username string) {
	switch {
	case username == "":
		errs[field] = requiredReason
	case username != strings.TrimSpace(username):
		errs[field] = "must not start or end with whitespace"
	case len(username) < 3 || len(username) > 64:
		errs[field] = "must be 3-64 characters"
	case !reName.MatchString(username):
		errs[field] = onlyNameChars
	}
}

// Any non-empty password is accepted; strength policy is left to the
// deployment.
func validateNewPassword(errs map[string]string, field, password string) {
	switch {
	case password == "":
		errs[field] = requiredReason
	case len(password) > MaxPasswordLength:
		errs[field] = "too long"
	}
}

func nilIfEmpty(errs map[string]string) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	return errs
}
