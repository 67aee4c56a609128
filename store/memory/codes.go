package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/alebarre/credauth/otp"
)

type codeKey struct {
	address string
	purpose otp.Purpose
}

// CodeStore keeps one-time code records per (address, purpose), oldest first.
type CodeStore struct {
	mu      sync.Mutex
	records map[codeKey][]*otp.Record
}

// NewCodeStore returns an empty store.
func NewCodeStore() *CodeStore {
	return &CodeStore{records: make(map[codeKey][]*otp.Record)}
}

func cloneRecord(r *otp.Record) *otp.Record {
	out := *r
	out.CodeHash = slices.Clone(r.CodeHash)
	return &out
}

// Replace marks earlier unused records used and appends rec.
func (s *CodeStore) Replace(_ context.Context, rec *otp.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := codeKey{rec.Address, rec.Purpose}
	for _, r := range s.records[k] {
		r.Used = true
	}
	s.records[k] = append(s.records[k], cloneRecord(rec))
	return nil
}

// Latest returns a copy of the newest unused record.
func (s *CodeStore) Latest(_ context.Context, address string, purpose otp.Purpose) (*otp.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.latestLocked(codeKey{address, purpose})
	if r == nil {
		return nil, otp.ErrNotFound
	}
	return cloneRecord(r), nil
}

// Update runs fn on the newest unused record under the store lock.
func (s *CodeStore) Update(_ context.Context, address string, purpose otp.Purpose, fn func(*otp.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.latestLocked(codeKey{address, purpose})
	if r == nil {
		return otp.ErrNotFound
	}
	work := cloneRecord(r)
	err := fn(work)
	r.Used = work.Used
	r.Attempts = work.Attempts
	return err
}

// DeleteExpired removes records that expired before the cutoff.
func (s *CodeStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, list := range s.records {
		kept := list[:0]
		for _, r := range list {
			if r.ExpiresAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.records, k)
			continue
		}
		s.records[k] = kept
	}
	return n, nil
}

func (s *CodeStore) latestLocked(k codeKey) *otp.Record {
	list := s.records[k]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].Used {
			return list[i]
		}
	}
	return nil
}
