package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the rotation token lifetime when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrUnknown means no record matches the presented token.
	ErrUnknown = errors.New("rotation token unknown")
	// ErrRevoked means the token was revoked by logout, rotation, or a password change.
	ErrRevoked = errors.New("rotation token revoked")
	// ErrExpired means the token outlived its absolute expiry.
	ErrExpired = errors.New("rotation token expired")
	// ErrAlreadyRotated is returned to the loser of a concurrent rotation.
	ErrAlreadyRotated = errors.New("rotation token already rotated")
	// ErrNotFound is returned by stores when no record has the given hash.
	ErrNotFound = errors.New("rotation token record not found")
)

// Token is the persisted form of a rotation token.
type Token struct {
	ID        string
	Principal string
	// Hash is the hex SHA-256 digest of the raw token.
	Hash      string
	ParentID  string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Expired reports whether t is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Issued pairs a stored record with the raw value handed to the client.
type Issued struct {
	Value string
	Token *Token
}

// Store persists rotation tokens. Implementations must make Rotate atomic:
// the revoke of current and the insert of next either both happen or neither
// does, and only one concurrent caller may revoke a given token.
type Store interface {
	Create(ctx context.Context, t *Token) error
	// Get returns ErrNotFound when hash is unknown.
	Get(ctx context.Context, hash string) (*Token, error)
	// Revoke flips revoked to true. It reports whether this call did the flip;
	// an unknown hash returns ErrNotFound.
	Revoke(ctx context.Context, hash string) (bool, error)
	// Rotate revokes the live token currentHash and inserts next. It returns
	// ErrAlreadyRotated if the token was already revoked, ErrExpired if it is
	// past expiry at next.CreatedAt, and ErrNotFound if it does not exist.
	Rotate(ctx context.Context, currentHash string, next *Token) error
	RevokeAll(ctx context.Context, principal string) (int64, error)
	// DeleteExpired physically removes tokens that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
