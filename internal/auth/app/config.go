package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	httpapi "github.com/aussiebroadwan/tabauth/internal/auth/http"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Issuer string `yaml:"issuer"` // issuer claim for tokens (default: tabauth)

	Env                 string        `yaml:"env"`            // dev, staging, prod (default: dev)
	LogLevel            string        `yaml:"log_level"`      // debug, info, warn, error (default: info)
	LogFormat           string        `yaml:"log_format"`     // json, text (default: json)
	Port                int           `yaml:"port"`           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace"` // default: 10s

	StoreDriver  string `yaml:"store_driver"`  // sqlite or memory (default: sqlite)
	DatabaseFile string `yaml:"database_file"` // SQLite file (default: ./auth.db)
	PepperFile   string `yaml:"pepper_file"`   // pepper for password hashing (default: ./pepper)

	// Signing material, first match wins: SigningKeyFile (PKCS8 PEM, EdDSA or
	// ES256), SecretFile, Secret (HS256). Secret is env only.
	SigningKeyFile string `yaml:"signing_key_file"`
	SecretFile     string `yaml:"secret_file"`
	Secret         string `yaml:"-"`
	KeyID          string `yaml:"key_id"`

	AccessTTL   time.Duration `yaml:"access_ttl"`
	RefreshTTL  time.Duration `yaml:"refresh_ttl"`
	TokenLeeway time.Duration `yaml:"token_leeway"`

	// Revocation enables the in-process denylist used by logout and refresh
	// rotation.
	Revocation bool `yaml:"revocation"`
	// DenylistMaxSizeMB caps the denylist; 0 is unbounded. A cap evicts old
	// entries, and an evicted token counts as not revoked.
	DenylistMaxSizeMB int `yaml:"denylist_max_size_mb"`

	DefaultRole string             `yaml:"default_role"`
	Roles       []service.RoleSpec `yaml:"roles"`
	RateLimits  httpapi.RateLimits `yaml:"rate_limits"`
}

// DefaultConfig returns the settings used when neither a file nor the
// environment says otherwise.
func DefaultConfig() Config {
	return Config{
		Issuer:              "tabauth",
		Env:                 "dev",
		LogLevel:            "info",
		LogFormat:           "json",
		Port:                8080,
		ShutdownGracePeriod: 10 * time.Second,
		StoreDriver:         DriverSQLite,
		DatabaseFile:        "auth.db",
		PepperFile:          "pepper",
		KeyID:               "tabauth-1",
		AccessTTL:           jwtx.DefaultAccessTokenTTL,
		RefreshTTL:          jwtx.DefaultRefreshTokenTTL,
		TokenLeeway:         jwtx.DefaultLeeway,
		Revocation:          true,
		DefaultRole:         "user",
		Roles:               service.DefaultRoles,
		RateLimits:          httpapi.DefaultRateLimits(),
	}
}

// LoadConfig layers the environment over AUTH_CONFIG_FILE (when set) over
// DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("AUTH_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.Issuer = getEnvOrDefault("AUTH_ISSUER", cfg.Issuer)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)

	cfg.StoreDriver = getEnvOrDefault("AUTH_STORE_DRIVER", cfg.StoreDriver)
	cfg.DatabaseFile = getEnvOrDefault("AUTH_DATABASE_FILE", cfg.DatabaseFile)
	cfg.PepperFile = getEnvOrDefault("AUTH_PEPPER_FILE", cfg.PepperFile)

	cfg.SigningKeyFile = getEnvOrDefault("AUTH_SIGNING_KEY_FILE", cfg.SigningKeyFile)
	cfg.SecretFile = getEnvOrDefault("AUTH_SECRET_FILE", cfg.SecretFile)
	cfg.Secret = os.Getenv("AUTH_SECRET")
	cfg.KeyID = getEnvOrDefault("AUTH_KEY_ID", cfg.KeyID)

	cfg.AccessTTL = getEnvDurationOrDefault("AUTH_ACCESS_TTL", cfg.AccessTTL)
	cfg.RefreshTTL = getEnvDurationOrDefault("AUTH_REFRESH_TTL", cfg.RefreshTTL)
	cfg.TokenLeeway = getEnvDurationOrDefault("AUTH_TOKEN_LEEWAY", cfg.TokenLeeway)

	cfg.Revocation = getEnvBoolOrDefault("AUTH_REVOCATION", cfg.Revocation)
	cfg.DenylistMaxSizeMB = getEnvIntOrDefault("AUTH_DENYLIST_MAX_SIZE_MB", cfg.DenylistMaxSizeMB)
	cfg.DefaultRole = getEnvOrDefault("AUTH_DEFAULT_ROLE", cfg.DefaultRole)

	cfg.RateLimits.Credential = httpx.ParseRateLimitFromEnv("CREDENTIAL", cfg.RateLimits.Credential)
	cfg.RateLimits.Session = httpx.ParseRateLimitFromEnv("SESSION", cfg.RateLimits.Session)
	cfg.RateLimits.Decision = httpx.ParseRateLimitFromEnv("DECISION", cfg.RateLimits.Decision)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("database_file is required for the sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}

	if c.AccessTTL < time.Second {
		errs = append(errs, errors.New("access_ttl must be at least 1s"))
	}
	if c.RefreshTTL < c.AccessTTL {
		errs = append(errs, errors.New("refresh_ttl must not be shorter than access_ttl"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.DefaultRole == "" {
		errs = append(errs, errors.New("default_role is required"))
	}

	found := false
	for _, r := range c.Roles {
		if r.Name == c.DefaultRole {
			found = true
			break
		}
	}
	if !found {
		errs = append(errs, fmt.Errorf("default role %q is not defined", c.DefaultRole))
	}

	return errors.Join(errs...)
}

// IsDev reports whether development shortcuts such as ephemeral keys apply.
func (c Config) IsDev() bool { return c.Env == "dev" }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
