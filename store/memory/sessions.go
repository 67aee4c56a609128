package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alebarre/credauth/session"
)

// SessionStore keeps rotation tokens keyed by hash.
type SessionStore struct {
	mu     sync.Mutex
	tokens map[string]*session.Token
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{tokens: make(map[string]*session.Token)}
}

// Create inserts t.
func (s *SessionStore) Create(_ context.Context, t *session.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tokens[t.Hash] = &cp
	return nil
}

// Get returns a copy of the token.
func (s *SessionStore) Get(_ context.Context, hash string) (*session.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// Revoke flips the token to revoked.
func (s *SessionStore) Revoke(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok {
		return false, session.ErrNotFound
	}
	if t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

// Rotate revokes currentHash and inserts next under one lock.
func (s *SessionStore) Rotate(_ context.Context, currentHash string, next *session.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tokens[currentHash]
	if !ok {
		return session.ErrNotFound
	}
	if cur.Revoked {
		return session.ErrAlreadyRotated
	}
	if cur.Expired(next.CreatedAt) {
		cur.Revoked = true
		return session.ErrExpired
	}
	cur.Revoked = true
	cp := *next
	s.tokens[next.Hash] = &cp
	return nil
}

// RevokeAll revokes every live token of principal.
func (s *SessionStore) RevokeAll(_ context.Context, principal string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.tokens {
		if t.Principal == principal && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes tokens that expired before the cutoff.
func (s *SessionStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(s.tokens, hash)
			n++
		}
	}
	return n, nil
}
