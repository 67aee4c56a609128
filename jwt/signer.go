package jwt

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyBytes is the smallest accepted HMAC key (256 bits).
const MinKeyBytes = 32

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = time.Hour

var (
	// ErrMalformed covers bad signatures, unexpected algorithms, and unparsable tokens.
	ErrMalformed = errors.New("session token malformed")
	// ErrExpired is returned when the token's exp claim is in the past.
	ErrExpired = errors.New("session token expired")
)

// Config configures a Signer.
type Config struct {
	// Key is the raw HMAC-SHA256 secret; see DecodeKey for base64 input.
	Key      []byte
	TTL      time.Duration
	Issuer   string
	Audience string
	// Leeway tolerates clock drift between signer and verifier.
	Leeway time.Duration
	// KeyID is written to the "kid" header and required on verify when set.
	KeyID string
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Claims is the session token payload.
type Claims struct {
	Roles string `json:"roles"`
	jwt.RegisteredClaims
}

// RoleList splits the comma-joined role claim.
func (c *Claims) RoleList() []string {
	if c == nil || c.Roles == "" {
		return nil
	}
	return strings.Split(c.Roles, ",")
}

// Signer mints and verifies session tokens. It is immutable after
// construction and safe for concurrent use.
type Signer struct {
	key      []byte
	ttl      time.Duration
	issuer   string
	audience string
	keyID    string
	now      func() time.Time
	parser   *jwt.Parser
}

// DecodeKey decodes a base64 (standard or URL alphabet, padded or not)
// signing secret and checks its length.
func DecodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	var (
		key []byte
		err error
	)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		key, err = enc.DecodeString(encoded)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("signing key is not valid base64: %w", err)
	}
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinKeyBytes, len(key))
	}
	return key, nil
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg Config) (*Signer, error) {
	if len(cfg.Key) < MinKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes", MinKeyBytes)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	key := make([]byte, len(cfg.Key))
	copy(key, cfg.Key)

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}

	return &Signer{
		key:      key,
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		keyID:    strings.TrimSpace(cfg.KeyID),
		now:      cfg.Now,
		parser:   jwt.NewParser(options...),
	}, nil
}

// TTL returns the configured token lifetime.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign mints a token for handle with the given role labels. expiresIn is the
// lifetime in whole seconds.
func (s *Signer) Sign(handle string, roles []string) (token string, expiresIn int64, err error) {
	if strings.TrimSpace(handle) == "" {
		return "", 0, errors.New("empty subject")
	}
	now := s.now()
	claims := Claims{
		Roles: strings.Join(roles, ","),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   handle,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.keyID != "" {
		t.Header["kid"] = s.keyID
	}
	signed, err := t.SignedString(s.key)
	if err != nil {
		return "", 0, fmt.Errorf("sign session token: %w", err)
	}
	return signed, int64(s.ttl / time.Second), nil
}

// Verify parses token and returns its claims. Expired tokens fail with
// ErrExpired; every other failure is ErrMalformed.
func (s *Signer) Verify(token string) (*Claims, error) {
	parsed, err := s.parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if s.keyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != s.keyID {
				return nil, errors.New("unknown kid")
			}
		}
		return s.key, nil
	})
	if err != nil {
		// Signature is checked before time claims, so an expired error
		// implies an authentic token.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}
