package memory

import (
	"context"
	"sync"

	"github.com/alebarre/credauth/password"
)

// HistoryStore keeps password history per principal, oldest first.
type HistoryStore struct {
	mu      sync.Mutex
	entries map[string][]password.HistoryEntry
}

// NewHistoryStore returns an empty store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{entries: make(map[string][]password.HistoryEntry)}
}

// Recent returns up to n entries, newest first.
func (s *HistoryStore) Recent(_ context.Context, principal string, n int) ([]password.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[principal]
	if n <= 0 || n > len(list) {
		n = len(list)
	}
	out := make([]password.HistoryEntry, 0, n)
	for i := len(list) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// Append adds entry as the newest for its principal.
func (s *HistoryStore) Append(_ context.Context, entry password.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Principal] = append(s.entries[entry.Principal], entry)
	return nil
}

// Prune keeps only the newest keep entries.
func (s *HistoryStore) Prune(_ context.Context, principal string, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pruneLocked(principal, keep), nil
}

func (s *HistoryStore) appendAndPrune(entry password.HistoryEntry, keep int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Principal] = append(s.entries[entry.Principal], entry)
	s.pruneLocked(entry.Principal, keep)
}

func (s *HistoryStore) pruneLocked(principal string, keep int) int64 {
	list := s.entries[principal]
	if keep < 0 {
		keep = 0
	}
	if len(list) <= keep {
		return 0
	}
	removed := len(list) - keep
	s.entries[principal] = append([]password.HistoryEntry(nil), list[removed:]...)
	return int64(removed)
}
