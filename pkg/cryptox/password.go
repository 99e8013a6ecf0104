package cryptox

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

var (
	ErrEmptyPassword    = errors.New("cryptox: password must not be empty")
	ErrPasswordMismatch = errors.New("password does not match")
	ErrInvalidHash      = errors.New("invalid hash format")
)

// Argon2Params are the tunables encoded into every PHC string we produce.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultArgon2Params follows the OWASP minimum for argon2id (19 MiB, t=2, p=1).
var DefaultArgon2Params = Argon2Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

// PasswordHasher hashes and verifies passwords with argon2id. Legacy bcrypt
// hashes (imported from older credential files) can still be verified.
//
// Hashing is deliberately expensive, so the number of concurrent hash
// computations is bounded; extra callers wait for a slot.
type PasswordHasher struct {
	pepper string
	params Argon2Params
	sem    *semaphore.Weighted
}

// HasherOptions configures a PasswordHasher.
type HasherOptions struct {
	// Pepper is appended to every password before hashing. It lives outside
	// the database (see LoadOrGeneratePepper).
	Pepper string

	// Params defaults to DefaultArgon2Params when zero.
	Params Argon2Params

	// MaxConcurrent bounds parallel hash computations. Defaults to GOMAXPROCS.
	MaxConcurrent int
}

func NewPasswordHasher(opts HasherOptions) *PasswordHasher {
	params := opts.Params
	if params == (Argon2Params{}) {
		params = DefaultArgon2Params
	}

	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	return &PasswordHasher{
		pepper: opts.Pepper,
		params: params,
		sem:    semaphore.NewWeighted(int64(limit)),
	}
}

// Hash generates a PHC-format Argon2id hash string including salt and parameters.
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	hash := argon2.IDKey(
		[]byte(password+h.pepper),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)
	h.sem.Release(1)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify compares a plaintext password against a stored hash. It returns nil
// on a match and an error for anything else, including malformed hashes.
func (h *PasswordHasher) Verify(ctx context.Context, password, encodedHash string) error {
	if isBcrypt(encodedHash) {
		return h.verifyBcrypt(ctx, password, encodedHash)
	}

	phc, err := parsePHC(encodedHash)
	if err != nil {
		return err
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	computed := argon2.IDKey(
		[]byte(password+h.pepper),
		phc.salt,
		phc.params.Iterations,
		phc.params.Memory,
		phc.params.Parallelism,
		uint32(len(phc.hash)), // #nosec G115 - decoded from our own encoding
	)
	h.sem.Release(1)

	if subtle.ConstantTimeCompare(computed, phc.hash) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}

// Matches is Verify collapsed to a boolean. Malformed hashes never match.
func (h *PasswordHasher) Matches(ctx context.Context, password, encodedHash string) bool {
	return h.Verify(ctx, password, encodedHash) == nil
}

// NeedsRehash reports whether a stored hash should be replaced with one
// using the current parameters.
func (h *PasswordHasher) NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	phc, err := parsePHC(encodedHash)
	if err != nil {
		return true
	}
	return phc.params.Memory < h.params.Memory ||
		phc.params.Iterations < h.params.Iterations ||
		uint32(len(phc.hash)) < h.params.KeyLength // #nosec G115
}

// verifyBcrypt checks hashes written by the bcrypt based credential files.
// Those were produced without a pepper.
func (h *PasswordHasher) verifyBcrypt(ctx context.Context, password, encodedHash string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

// Upper bounds for parameters read back from a stored hash. A hash outside
// them is rejected instead of tying up a hashing slot for minutes or
// exhausting memory.
const (
	maxArgon2Memory     = 1 << 20 // KiB, 1 GiB
	maxArgon2Iterations = 64
	maxArgon2Bytes      = 1024 // salt and key length
)

type phcHash struct {
	params Argon2Params
	salt   []byte
	hash   []byte
}

// parsePHC parses $argon2id$v=19$m=X,t=Y,p=Z$salt$hash.
func parsePHC(encodedHash string) (phcHash, error) {
	parts := strings.Split(encodedHash, "$")

	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	if len(parts) != 6 || parts[0] != "" {
		return phcHash{}, fmt.Errorf("%w: expected 6 parts", ErrInvalidHash)
	}
	if parts[1] != "argon2id" {
		return phcHash{}, fmt.Errorf("%w: not argon2id", ErrInvalidHash)
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phcHash{}, fmt.Errorf("%w: wrong version", ErrInvalidHash)
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return phcHash{}, fmt.Errorf("%w: failed to parse parameters", ErrInvalidHash)
	}
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return phcHash{}, fmt.Errorf("%w: zero parameter", ErrInvalidHash)
	}
	if p.Memory > maxArgon2Memory || p.Iterations > maxArgon2Iterations {
		return phcHash{}, fmt.Errorf("%w: parameters out of range", ErrInvalidHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 || len(salt) > maxArgon2Bytes {
		return phcHash{}, fmt.Errorf("%w: failed to decode salt", ErrInvalidHash)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 || len(hash) > maxArgon2Bytes {
		return phcHash{}, fmt.Errorf("%w: failed to decode hash", ErrInvalidHash)
	}

	p.SaltLength = uint32(len(salt)) // #nosec G115
	p.KeyLength = uint32(len(hash))  // #nosec G115
	return phcHash{params: p, salt: salt, hash: hash}, nil
}

// GeneratePassword returns a random 16 character alphanumeric password, used
// when an operator creates an account without choosing one.
func GeneratePassword() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 16
	password := make([]byte, length)
	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random password: %w", err)
		}
		password[i] = charset[n.Int64()]
	}
	return string(password), nil
}
