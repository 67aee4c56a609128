package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/password"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// CredentialStore keeps credentials keyed by handle.
type CredentialStore struct {
	mu      sync.Mutex
	byID    map[string]*credential.Credential
	history *HistoryStore
}

// NewCredentialStore returns an empty store. history receives superseded
// hashes from ReplacePassword and may be nil.
func NewCredentialStore(history *HistoryStore) *CredentialStore {
	return &CredentialStore{
		byID:    make(map[string]*credential.Credential),
		history: history,
	}
}

func clone(c *credential.Credential) *credential.Credential {
	out := *c
	out.Roles = slices.Clone(c.Roles)
	return &out
}

// FindByHandle returns a copy of the credential.
func (s *CredentialStore) FindByHandle(_ context.Context, handle string) (*credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[handle]
	if !ok {
		return nil, credential.ErrNotFound
	}
	return clone(c), nil
}

// Create inserts c, assigning an ID and timestamps when unset.
func (s *CredentialStore) Create(_ context.Context, c *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.Handle]; ok {
		return credential.ErrExists
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.byID[c.Handle] = clone(c)
	return nil
}

// Save overwrites an existing credential.
func (s *CredentialStore) Save(_ context.Context, c *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.Handle]; !ok {
		return credential.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	s.byID[c.Handle] = clone(c)
	return nil
}

// Delete removes the credential.
func (s *CredentialStore) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[handle]; !ok {
		return credential.ErrNotFound
	}
	delete(s.byID, handle)
	return nil
}

// CountWithRole counts credentials holding role, enabled or not.
func (s *CredentialStore) CountWithRole(_ context.Context, role credential.Role) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.byID {
		if c.HasRole(role) {
			n++
		}
	}
	return n, nil
}

// ReplacePassword appends the current hash to history, prunes it to keep and
// installs newHash, all under the store lock.
func (s *CredentialStore) ReplacePassword(_ context.Context, handle, newHash string, keep int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[handle]
	if !ok {
		return credential.ErrNotFound
	}
	if s.history != nil && c.PasswordHash != "" {
		s.history.appendAndPrune(password.HistoryEntry{
			ID:        ulid.Make().String(),
			Principal: handle,
			Hash:      c.PasswordHash,
			CreatedAt: at,
		}, keep)
	}
	c.PasswordHash = newHash
	c.UpdatedAt = at
	return nil
}

// SetEnabled writes only the enabled flag.
func (s *CredentialStore) SetEnabled(_ context.Context, handle string, enabled bool, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[handle]
	if !ok {
		return false, credential.ErrNotFound
	}
	if c.Enabled == enabled {
		return false, nil
	}
	c.Enabled = enabled
	c.UpdatedAt = at
	return true, nil
}

// SwapPasswordHash installs newHash while the stored hash equals oldHash.
func (s *CredentialStore) SwapPasswordHash(_ context.Context, handle, oldHash, newHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[handle]
	if !ok || c.PasswordHash != oldHash {
		return false, nil
	}
	c.PasswordHash = newHash
	c.UpdatedAt = at
	return true, nil
}

// CreateFirstAdmin inserts c unless an admin exists.
func (s *CredentialStore) CreateFirstAdmin(_ context.Context, c *credential.Credential) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adminsLocked() > 0 {
		return false, nil
	}
	if _, ok := s.byID[c.Handle]; ok {
		return false, credential.ErrExists
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.byID[c.Handle] = clone(c)
	return true, nil
}

// DeleteUnlessLastAdmin removes handle unless it is the only admin.
func (s *CredentialStore) DeleteUnlessLastAdmin(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[handle]
	if !ok {
		return credential.ErrNotFound
	}
	if c.HasRole(credential.RoleAdmin) && s.adminsLocked() <= 1 {
		return credential.ErrLastAdmin
	}
	delete(s.byID, handle)
	return nil
}

// ReplaceRolesUnlessLastAdmin overwrites the roles of handle unless that
// drops the only admin.
func (s *CredentialStore) ReplaceRolesUnlessLastAdmin(_ context.Context, handle string, roles []credential.Role, at time.Time) (*credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[handle]
	if !ok {
		return nil, credential.ErrNotFound
	}
	if c.HasRole(credential.RoleAdmin) && !slices.Contains(roles, credential.RoleAdmin) && s.adminsLocked() <= 1 {
		return nil, credential.ErrLastAdmin
	}
	c.Roles = slices.Clone(roles)
	c.UpdatedAt = at
	return clone(c), nil
}

func (s *CredentialStore) adminsLocked() int {
	n := 0
	for _, c := range s.byID {
		if c.HasRole(credential.RoleAdmin) {
			n++
		}
	}
	return n
}
