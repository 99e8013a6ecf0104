package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKey = errors.New("jwtx: invalid signing key")

// Key is the single signing key a Codec works with. It is loaded once at
// startup and never mutated.
type Key struct {
	id     string
	method jwt.SigningMethod
	sign   any
	verify any
}

// NewHMACKey builds an HS256 key. The secret must be at least
// cryptox.MinHMACSecretSize bytes.
func NewHMACKey(kid string, secret []byte) (Key, error) {
	if len(secret) < cryptox.MinHMACSecretSize {
		return Key{}, fmt.Errorf("%w: HS256 secret must be at least %d bytes, got %d",
			ErrInvalidKey, cryptox.MinHMACSecretSize, len(secret))
	}

	// Copy so the caller cannot mutate the key after construction.
	buf := append([]byte(nil), secret...)
	return Key{id: kid, method: jwt.SigningMethodHS256, sign: buf, verify: buf}, nil
}

// NewKeyFromPEM builds an EdDSA or ES256 key from a PKCS8 private key.
func NewKeyFromPEM(kid string, pemKey []byte) (Key, error) {
	signer, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return NewKeyFromSigner(kid, signer)
}

// NewKeyFromSigner wraps an in-memory Ed25519 or P-256 ECDSA private key.
func NewKeyFromSigner(kid string, signer crypto.Signer) (Key, error) {
	switch k := signer.(type) {
	case ed25519.PrivateKey:
		if len(k) != ed25519.PrivateKeySize {
			return Key{}, fmt.Errorf("%w: bad Ed25519 key size", ErrInvalidKey)
		}
		return Key{id: kid, method: jwt.SigningMethodEdDSA, sign: k, verify: k.Public()}, nil
	case *ecdsa.PrivateKey:
		if k.Curve.Params().Name != "P-256" {
			return Key{}, fmt.Errorf("%w: ES256 needs a P-256 key", ErrInvalidKey)
		}
		return Key{id: kid, method: jwt.SigningMethodES256, sign: k, verify: &k.PublicKey}, nil
	default:
		return Key{}, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, signer)
	}
}

func (k Key) ID() string  { return k.id }
func (k Key) Alg() string { return k.method.Alg() }

func (k Key) valid() bool {
	return k.method != nil && k.sign != nil && k.verify != nil
}
