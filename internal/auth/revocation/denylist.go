// Package revocation keeps the identifiers of tokens that were logged out or
// rotated before their natural expiry.
//
// The denylist is process local. Multiple replicas each hold their own view,
// so a token revoked on one node stays valid on the others until it expires.
package revocation

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
)

type Config struct {
	// MaxTokenLifetime bounds how long an entry must be kept. It should be at
	// least the refresh token TTL plus the verification leeway.
	MaxTokenLifetime time.Duration

	// CleanInterval is how often expired entries are purged.
	CleanInterval time.Duration

	// Leeway is the verifier's expiry tolerance. Entries are kept until
	// exp + Leeway, the last moment the codec would still accept the token.
	Leeway time.Duration

	// MaxSizeMB caps the cache memory; 0 means unbounded. Once the cap is
	// reached bigcache evicts the oldest entries, and an evicted token is no
	// longer revoked. Leave it at 0 unless the cap comfortably holds every
	// revocation made within MaxTokenLifetime.
	MaxSizeMB int

	Clock func() time.Time
}

// Denylist is an in-memory set of revoked token ids backed by bigcache. Each
// entry remembers the token expiry and is ignored once that has passed.
type Denylist struct {
	cache  *bigcache.BigCache
	clock  func() time.Time
	leeway time.Duration
}

func NewDenylist(ctx context.Context, cfg Config) (*Denylist, error) {
	if cfg.Leeway < 0 {
		cfg.Leeway = 0
	}
	if cfg.MaxTokenLifetime <= 0 {
		return nil, fmt.Errorf("revocation: max token lifetime must be positive, got %s", cfg.MaxTokenLifetime)
	}
	if cfg.CleanInterval <= 0 {
		cfg.CleanInterval = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	bc := bigcache.DefaultConfig(cfg.MaxTokenLifetime + cfg.Leeway)
	bc.CleanWindow = cfg.CleanInterval
	bc.HardMaxCacheSize = cfg.MaxSizeMB
	bc.MaxEntrySize = 8
	bc.Verbose = false

	cache, err := bigcache.New(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("revocation: create cache: %w", err)
	}
	return &Denylist{cache: cache, clock: cfg.Clock, leeway: cfg.Leeway}, nil
}

// Revoke marks jti as revoked until exp plus the leeway. Revoking a token the
// verifier would reject anyway is a no-op.
func (d *Denylist) Revoke(ctx context.Context, jti string, exp time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	until := exp.Add(d.leeway)
	if jti == "" || !d.clock().Before(until) {
		return nil
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(until.UnixMilli()))
	if err := d.cache.Set(cryptox.FingerprintToken(jti), buf[:]); err != nil {
		return fmt.Errorf("revocation: set: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti was revoked and has not yet expired.
func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	buf, err := d.cache.Get(cryptox.FingerprintToken(jti))
	switch {
	case errors.Is(err, bigcache.ErrEntryNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("revocation: get: %w", err)
	case len(buf) != 8:
		return false, nil
	}

	until := time.UnixMilli(int64(binary.BigEndian.Uint64(buf)))
	return d.clock().Before(until), nil
}

// Len returns the number of entries currently held, expired ones included.
func (d *Denylist) Len() int { return d.cache.Len() }

func (d *Denylist) Close() error { return d.cache.Close() }
