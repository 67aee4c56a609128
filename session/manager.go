package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alebarre/credauth/internal"
	"github.com/google/uuid"
)

// Manager issues, rotates and revokes rotation tokens.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager over store. A zero ttl means DefaultTTL.
func NewManager(store Store, ttl time.Duration, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is nil")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < 0 {
		return nil, errors.New("rotation token ttl must be > 0")
	}
	m := &Manager{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the rotation token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a fresh token for principal.
func (m *Manager) Issue(ctx context.Context, principal string) (*Issued, error) {
	if strings.TrimSpace(principal) == "" {
		return nil, errors.New("empty principal")
	}
	issued, err := m.mint(principal, "")
	if err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, issued.Token); err != nil {
		return nil, fmt.Errorf("store rotation token: %w", err)
	}
	return issued, nil
}

// Rotate revokes raw and issues its descendant for the same principal.
// Exactly one of several concurrent callers with the same raw succeeds; the
// rest get ErrAlreadyRotated.
func (m *Manager) Rotate(ctx context.Context, raw string) (*Issued, error) {
	current, err := m.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	if current.Revoked {
		return nil, ErrAlreadyRotated
	}

	next, err := m.mint(current.Principal, current.ID)
	if err != nil {
		return nil, err
	}
	err = m.store.Rotate(ctx, current.Hash, next.Token)
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, ErrAlreadyRotated):
		return nil, ErrAlreadyRotated
	case errors.Is(err, ErrExpired):
		return nil, ErrExpired
	case errors.Is(err, ErrNotFound):
		return nil, ErrUnknown
	default:
		return nil, fmt.Errorf("rotate rotation token: %w", err)
	}
}

// ValidateOrFail returns the record for raw only if it is neither revoked nor
// expired. An expired token is revoked on the way out.
func (m *Manager) ValidateOrFail(ctx context.Context, raw string) (*Token, error) {
	t, err := m.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	if t.Revoked {
		return nil, ErrRevoked
	}
	if t.Expired(m.now()) {
		if _, err := m.store.Revoke(ctx, t.Hash); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("revoke expired rotation token: %w", err)
		}
		return nil, ErrExpired
	}
	return t, nil
}

// Revoke revokes raw. Unknown and already revoked tokens are not an error.
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := m.store.Revoke(ctx, internal.HashToken(raw)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("revoke rotation token: %w", err)
	}
	return nil
}

// RevokeAll revokes every live token of principal and returns how many it revoked.
func (m *Manager) RevokeAll(ctx context.Context, principal string) (int64, error) {
	n, err := m.store.RevokeAll(ctx, principal)
	if err != nil {
		return 0, fmt.Errorf("revoke all rotation tokens: %w", err)
	}
	return n, nil
}

// Purge deletes tokens that expired before cutoff.
func (m *Manager) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.store.DeleteExpired(ctx, cutoff)
}

func (m *Manager) lookup(ctx context.Context, raw string) (*Token, error) {
	if raw == "" {
		return nil, ErrUnknown
	}
	t, err := m.store.Get(ctx, internal.HashToken(raw))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("load rotation token: %w", err)
	}
	return t, nil
}

func (m *Manager) mint(principal, parentID string) (*Issued, error) {
	raw, err := internal.NewOpaqueToken(internal.RotationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate rotation token: %w", err)
	}
	now := m.now().UTC()
	return &Issued{
		Value: raw,
		Token: &Token{
			ID:        uuid.NewString(),
			Principal: principal,
			Hash:      internal.HashToken(raw),
			ParentID:  parentID,
			ExpiresAt: now.Add(m.ttl),
			CreatedAt: now,
		},
	}, nil
}
