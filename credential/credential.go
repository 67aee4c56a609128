// Package credential defines the principal record shared by every credauth
// component and the storage contract the engine reads and writes it through.
package credential

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by stores when no credential matches the handle.
	ErrNotFound = errors.New("credential not found")
	// ErrExists is returned by Create when the handle is already taken.
	ErrExists = errors.New("credential already exists")
	// ErrRoleInvalid is returned when a role label is outside the allow-list.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrLastAdmin is returned by AdminGuard methods when the change would
	// leave no credential holding RoleAdmin.
	ErrLastAdmin = errors.New("operation would remove the last admin")
)

// Role is a normalized role label carried in session tokens.
type Role string

const (
	// RoleAdmin is the administrative role. At least one credential must hold it.
	RoleAdmin Role = "ROLE_ADMIN"
	// RoleUser is assigned to self-registered principals.
	RoleUser Role = "ROLE_USER"
)

const rolePrefix = "ROLE_"

var allowedRoles = map[Role]struct{}{
	RoleAdmin: {},
	RoleUser:  {},
}

// Credential is the stored record for one principal.
type Credential struct {
	ID           string
	Handle       string
	PasswordHash string
	DisplayName  string
	Email        string
	Phone        string
	Roles        []Role
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether c carries role.
func (c *Credential) HasRole(role Role) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleLabels returns the roles as plain strings, in stored order.
func (c *Credential) RoleLabels() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Roles))
	for _, r := range c.Roles {
		out = append(out, string(r))
	}
	return out
}

// NormalizeRole trims, upper-cases and prefixes a label ("admin" -> "ROLE_ADMIN")
// and checks it against the allow-list.
func NormalizeRole(label string) (Role, error) {
	v := strings.ToUpper(strings.TrimSpace(label))
	if v == "" {
		return "", ErrRoleInvalid
	}
	if !strings.HasPrefix(v, rolePrefix) {
		v = rolePrefix + v
	}
	role := Role(v)
	if _, ok := allowedRoles[role]; !ok {
		return "", ErrRoleInvalid
	}
	return role, nil
}

// NormalizeRoles normalizes every label and drops duplicates. An empty input
// yields an empty, non-nil slice.
func NormalizeRoles(labels []string) ([]Role, error) {
	out := make([]Role, 0, len(labels))
	seen := make(map[Role]struct{}, len(labels))
	for _, label := range labels {
		role, err := NormalizeRole(label)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out, nil
}

// Finder is the read side of Store. The one-time code manager only needs this.
type Finder interface {
	FindByHandle(ctx context.Context, handle string) (*Credential, error)
}

// Store persists credentials.
type Store interface {
	Finder
	AdminGuard
	Create(ctx context.Context, c *Credential) error
	Save(ctx context.Context, c *Credential) error
	Delete(ctx context.Context, handle string) error
	CountWithRole(ctx context.Context, role Role) (int, error)
	// SetEnabled writes only the enabled flag and reports whether it changed.
	SetEnabled(ctx context.Context, handle string, enabled bool, at time.Time) (bool, error)
	// SwapPasswordHash installs newHash only while the stored hash is still
	// oldHash. It reports whether the swap happened; a missing handle is not
	// an error.
	SwapPasswordHash(ctx context.Context, handle, oldHash, newHash string, at time.Time) (bool, error)
}

// AdminGuard changes the set of admins. Each method checks the admin count
// and applies the change as one atomic step, across every process sharing
// the store.
type AdminGuard interface {
	// CreateFirstAdmin inserts c only while no credential holds RoleAdmin.
	// It reports false when an admin already exists and ErrExists when the
	// handle is taken.
	CreateFirstAdmin(ctx context.Context, c *Credential) (bool, error)
	// DeleteUnlessLastAdmin removes handle, failing with ErrLastAdmin when it
	// is the only admin.
	DeleteUnlessLastAdmin(ctx context.Context, handle string) error
	// ReplaceRolesUnlessLastAdmin overwrites the roles of handle, failing
	// with ErrLastAdmin when that would drop the only admin. It returns the
	// updated credential.
	ReplaceRolesUnlessLastAdmin(ctx context.Context, handle string, roles []Role, at time.Time) (*Credential, error)
}

// PasswordReplacer is implemented by stores that can append the superseded hash
// to password history, prune it, and overwrite the credential hash in a single
// transaction.
type PasswordReplacer interface {
	ReplacePassword(ctx context.Context, handle, newHash string, keep int, at time.Time) error
}
