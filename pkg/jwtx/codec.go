package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the only error Verify returns. Callers must not be able
// to tell a bad signature from an expired or malformed token.
var ErrInvalidToken = errors.New("jwtx: invalid token")

// DefaultLeeway absorbs clock skew between issuer and verifier.
const DefaultLeeway = time.Second

// CodecOptions configures a Codec.
type CodecOptions struct {
	Key Key

	// Issuer is written to "iss" and required on verification.
	Issuer string

	// Leeway for exp/nbf/iat. Zero means DefaultLeeway, negative disables it.
	Leeway time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Codec issues and verifies signed tokens. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	key    Key
	issuer string
	leeway time.Duration
	clock  func() time.Time
	parser *jwt.Parser
}

func NewCodec(opts CodecOptions) (*Codec, error) {
	if !opts.Key.valid() {
		return nil, ErrInvalidKey
	}
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: issuer is required")
	}

	leeway := opts.Leeway
	switch {
	case leeway == 0:
		leeway = DefaultLeeway
	case leeway < 0:
		leeway = 0
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	c := &Codec{
		key:    opts.Key,
		issuer: opts.Issuer,
		leeway: leeway,
		clock:  clock,
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{opts.Key.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(func() time.Time { return c.clock() }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(opts.Issuer),
	)
	return c, nil
}

// IssueParams describe a single token.
type IssueParams struct {
	Subject      string
	Username     string
	Capabilities []string
	Use          TokenUse
	TTL          time.Duration

	// CredentialStamp is copied into refresh tokens only.
	CredentialStamp int64
}

// Issue signs a new token and returns it together with the claims it carries.
// Token timestamps have second precision, so TTLs under a second are rejected.
func (c *Codec) Issue(p IssueParams) (string, Claims, error) {
	if p.Subject == "" {
		return "", Claims{}, errors.New("jwtx: subject is required")
	}
	if !p.Use.Valid() {
		return "", Claims{}, fmt.Errorf("jwtx: unknown token use %q", p.Use)
	}
	if p.TTL < time.Second {
		return "", Claims{}, fmt.Errorf("jwtx: ttl must be at least 1s, got %s", p.TTL)
	}

	now := c.clock()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
			ID:        NewJTI(),
		},
		Username: p.Username,
		Use:      p.Use,
	}
	if p.Use == UseAccess && len(p.Capabilities) > 0 {
		claims.Capabilities = append([]string(nil), p.Capabilities...)
	}
	if p.Use == UseRefresh {
		claims.CredentialStamp = p.CredentialStamp
	}

	t := jwt.NewWithClaims(c.key.method, claims)
	if c.key.id != "" {
		t.Header["kid"] = c.key.id
	}
	signed, err := t.SignedString(c.key.sign)
	if err != nil {
		return "", Claims{}, fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, claims, nil
}

// Verify checks structure, signature, validity window, issuer and use, in
// that order. Any failure yields ErrInvalidToken.
func (c *Codec) Verify(token string, use TokenUse) (Claims, error) {
	var claims Claims
	parsed, err := c.parser.ParseWithClaims(token, &claims, c.keyFunc)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	switch {
	case claims.Use != use:
		return Claims{}, ErrInvalidToken
	case claims.Subject == "":
		return Claims{}, ErrInvalidToken
	case claims.IssuedAt == nil || claims.ExpiresAt == nil:
		return Claims{}, ErrInvalidToken
	case !claims.ExpiresAt.After(claims.IssuedAt.Time):
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid != c.key.id {
		return nil, fmt.Errorf("jwtx: unknown kid %q", kid)
	}
	return c.key.verify, nil
}

// Leeway returns the clock skew tolerance in use.
func (c *Codec) Leeway() time.Duration { return c.leeway }
