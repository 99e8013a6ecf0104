package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
)

// ErrNoSigningKey is returned outside dev when no signing material is configured.
var ErrNoSigningKey = errors.New("no signing key configured: set AUTH_SIGNING_KEY_FILE, AUTH_SECRET_FILE or AUTH_SECRET")

// LoadSigningKey resolves the token signing key.
//
// Sources, in order:
//   - SigningKeyFile: PKCS8 PEM, Ed25519 (EdDSA) or P-256 (ES256).
//   - SecretFile: HS256 shared secret read from disk.
//   - Secret: HS256 shared secret from the environment.
//
// With none of them set a dev instance generates an ephemeral HS256 secret.
// Tokens issued with it stop verifying on restart.
func LoadSigningKey(cfg Config, logger *slog.Logger) (jwtx.Key, error) {
	switch {
	case cfg.SigningKeyFile != "":
		pemKey, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return jwtx.Key{}, fmt.Errorf("read signing key: %w", err)
		}
		key, err := jwtx.NewKeyFromPEM(cfg.KeyID, pemKey)
		if err != nil {
			return jwtx.Key{}, err
		}
		logger.Info("signing key loaded", "alg", key.Alg(), "kid", key.ID(), "path", cfg.SigningKeyFile)
		return key, nil

	case cfg.SecretFile != "":
		data, err := os.ReadFile(cfg.SecretFile)
		if err != nil {
			return jwtx.Key{}, fmt.Errorf("read secret file: %w", err)
		}
		key, err := jwtx.NewHMACKey(cfg.KeyID, []byte(strings.TrimSpace(string(data))))
		if err != nil {
			return jwtx.Key{}, err
		}
		logger.Info("signing key loaded", "alg", key.Alg(), "kid", key.ID(), "path", cfg.SecretFile)
		return key, nil

	case cfg.Secret != "":
		key, err := jwtx.NewHMACKey(cfg.KeyID, []byte(cfg.Secret))
		if err != nil {
			return jwtx.Key{}, err
		}
		logger.Info("signing key loaded from environment", "alg", key.Alg(), "kid", key.ID())
		return key, nil
	}

	if !cfg.IsDev() {
		return jwtx.Key{}, ErrNoSigningKey
	}

	secret, err := cryptox.GenerateHMACSecret()
	if err != nil {
		return jwtx.Key{}, err
	}
	key, err := jwtx.NewHMACKey(cfg.KeyID, []byte(secret))
	if err != nil {
		return jwtx.Key{}, err
	}
	logger.Warn("using an ephemeral signing secret; all tokens become invalid on restart")
	return key, nil
}

// GenerateSigningMaterial produces a PEM private key (EdDSA, ES256) or an
// HS256 secret.
func GenerateSigningMaterial(alg string) ([]byte, error) {
	switch strings.ToUpper(alg) {
	case "EDDSA", "ED25519":
		return cryptox.GenerateEd25519Key()
	case "ES256":
		return cryptox.GenerateES256Key()
	case "HS256":
		secret, err := cryptox.GenerateHMACSecret()
		if err != nil {
			return nil, err
		}
		return []byte(secret + "\n"), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q (EdDSA, ES256, HS256)", alg)
	}
}
