package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/google/uuid"
)

// AccountDeps captures administrative dependencies. Changes to the admin set
// go through credential.AdminGuard, which checks and applies them atomically
// in the store.
type AccountDeps struct {
	Credentials credential.Store
	Sessions    Sessions
	Hasher      Hasher
	Now         func() time.Time
}

// RunUpdateRoles replaces the roles of handle. Labels are normalized and
// checked against the allow-list. Removing ROLE_ADMIN from the last admin
// fails with ErrLastAdmin.
func RunUpdateRoles(ctx context.Context, handle string, labels []string, deps AccountDeps) (*credential.Credential, error) {
	roles, err := credential.NormalizeRoles(labels)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, ErrNoRoles
	}
	return deps.Credentials.ReplaceRolesUnlessLastAdmin(ctx, handle, roles, nowOr(deps.Now))
}

// RunDeleteCredential removes handle and revokes its rotation tokens.
func RunDeleteCredential(ctx context.Context, handle string, deps AccountDeps) (int64, error) {
	if err := deps.Credentials.DeleteUnlessLastAdmin(ctx, handle); err != nil {
		return 0, err
	}
	return deps.Sessions.RevokeAll(ctx, handle)
}

// RunSetEnabled toggles the enabled flag. Disabling revokes every rotation
// token of handle. It reports how many were revoked.
func RunSetEnabled(ctx context.Context, handle string, enabled bool, deps AccountDeps) (int64, error) {
	changed, err := deps.Credentials.SetEnabled(ctx, handle, enabled, nowOr(deps.Now))
	if err != nil || !changed || enabled {
		return 0, err
	}
	return deps.Sessions.RevokeAll(ctx, handle)
}

// RunSeedAdmin creates an enabled admin when no credential holds ROLE_ADMIN.
// It reports whether a credential was created. An existing non-admin
// credential with the same handle yields credential.ErrExists.
func RunSeedAdmin(ctx context.Context, handle, password string, deps AccountDeps) (bool, error) {
	n, err := deps.Credentials.CountWithRole(ctx, credential.RoleAdmin)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	hash, err := deps.Hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	now := nowOr(deps.Now)
	return deps.Credentials.CreateFirstAdmin(ctx, &credential.Credential{
		ID:           uuid.NewString(),
		Handle:       handle,
		PasswordHash: hash,
		DisplayName:  "Administrator",
		Roles:        []credential.Role{credential.RoleAdmin, credential.RoleUser},
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}
