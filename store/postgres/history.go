package postgres

import (
	"context"

	"github.com/alebarre/credauth/password"
	"github.com/samber/oops"
)

// HistoryStore implements password.HistoryStore.
type HistoryStore struct {
	db DB
}

var _ password.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore returns a store over db.
func NewHistoryStore(db DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Recent returns up to n entries, newest first.
func (s *HistoryStore) Recent(ctx context.Context, principal string, n int) ([]password.HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, principal, hash, created_at FROM password_history
		WHERE principal = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, principal, n)
	if err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").With("principal", principal).Wrap(err)
	}
	defer rows.Close()

	var out []password.HistoryEntry
	for rows.Next() {
		var e password.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Principal, &e.Hash, &e.CreatedAt); err != nil {
			return nil, oops.Code("HISTORY_LIST_FAILED").With("operation", "scan").Wrap(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").With("operation", "iterate").Wrap(err)
	}
	return out, nil
}

// Append inserts entry.
func (s *HistoryStore) Append(ctx context.Context, e password.HistoryEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO password_history (id, principal, hash, created_at) VALUES ($1, $2, $3, $4)`,
		e.ID, e.Principal, e.Hash, e.CreatedAt)
	if err != nil {
		return oops.Code("HISTORY_APPEND_FAILED").With("principal", e.Principal).Wrap(err)
	}
	return nil
}

// Prune keeps the newest keep entries for principal.
func (s *HistoryStore) Prune(ctx context.Context, principal string, keep int) (int64, error) {
	tag, err := s.db.Exec(ctx, pruneHistorySQL, principal, keep)
	if err != nil {
		return 0, oops.Code("HISTORY_PRUNE_FAILED").With("principal", principal).Wrap(err)
	}
	return tag.RowsAffected(), nil
}
