package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/alebarre/credauth/session"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// SessionStore implements session.Store.
type SessionStore struct {
	db DB
}

var _ session.Store = (*SessionStore)(nil)

// NewSessionStore returns a store over db.
func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db}
}

func nullableUUID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// Create inserts t.
func (s *SessionStore) Create(ctx context.Context, t *session.Token) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO session_tokens (id, principal, token_hash, parent_id, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Principal, t.Hash, nullableUUID(t.ParentID), t.ExpiresAt, t.Revoked, t.CreatedAt)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("principal", t.Principal).Wrap(err)
	}
	return nil
}

// Get loads a token by hash.
func (s *SessionStore) Get(ctx context.Context, hash string) (*session.Token, error) {
	var t session.Token
	err := s.db.QueryRow(ctx, `
		SELECT id::text, principal, token_hash, COALESCE(parent_id::text, ''), expires_at, revoked, created_at
		FROM session_tokens WHERE token_hash = $1`, hash).
		Scan(&t.ID, &t.Principal, &t.Hash, &t.ParentID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}
	return &t, nil
}

// Revoke flips the token to revoked and reports whether this call did it.
func (s *SessionStore) Revoke(ctx context.Context, hash string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE session_tokens SET revoked = true WHERE token_hash = $1 AND revoked = false`, hash)
	if err != nil {
		return false, oops.Code("SESSION_REVOKE_FAILED").Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM session_tokens WHERE token_hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, oops.Code("SESSION_REVOKE_FAILED").With("operation", "exists").Wrap(err)
	}
	if !exists {
		return false, session.ErrNotFound
	}
	return false, nil
}

// Rotate revokes the live token currentHash and inserts next in one
// transaction. The conditional update is the compare-and-swap: a concurrent
// rotation blocks on the row lock and then matches zero rows.
func (s *SessionStore) Rotate(ctx context.Context, currentHash string, next *session.Token) error {
	return inTx(ctx, s.db, "SESSION_ROTATE_FAILED", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE session_tokens SET revoked = true
			WHERE token_hash = $1 AND revoked = false AND expires_at > $2`,
			currentHash, next.CreatedAt)
		if err != nil {
			return oops.Code("SESSION_ROTATE_FAILED").With("principal", next.Principal).Wrap(err)
		}
		if tag.RowsAffected() == 0 {
			return s.rotateMiss(ctx, tx, currentHash)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO session_tokens (id, principal, token_hash, parent_id, expires_at, revoked, created_at)
			VALUES ($1, $2, $3, $4, $5, false, $6)`,
			next.ID, next.Principal, next.Hash, nullableUUID(next.ParentID), next.ExpiresAt, next.CreatedAt); err != nil {
			return oops.Code("SESSION_ROTATE_FAILED").With("principal", next.Principal).With("operation", "insert").Wrap(err)
		}
		return nil
	})
}

func (s *SessionStore) rotateMiss(ctx context.Context, tx pgx.Tx, hash string) error {
	var revoked bool
	err := tx.QueryRow(ctx, `SELECT revoked FROM session_tokens WHERE token_hash = $1`, hash).Scan(&revoked)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return session.ErrNotFound
	case err != nil:
		return oops.Code("SESSION_ROTATE_FAILED").With("operation", "classify").Wrap(err)
	case revoked:
		return session.ErrAlreadyRotated
	default:
		return session.ErrExpired
	}
}

// RevokeAll revokes every live token of principal.
func (s *SessionStore) RevokeAll(ctx context.Context, principal string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE session_tokens SET revoked = true WHERE principal = $1 AND revoked = false`, principal)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").With("principal", principal).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes tokens that expired before the cutoff.
func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM session_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
