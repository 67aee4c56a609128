package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/password"
)

// PasswordDeps captures password change and reset dependencies.
type PasswordDeps struct {
	Credentials credential.Store
	// Replacer, when set, records history and overwrites the hash in one
	// transaction. Otherwise Policy.Record and Credentials.Save are used.
	Replacer credential.PasswordReplacer
	Hasher   Hasher
	Policy   Policy
	Sessions Sessions
	Codes    Codes
	Now      func() time.Time
}

// PasswordResult reports how many rotation tokens were revoked.
type PasswordResult struct {
	Revoked int64
}

// RunChangePassword verifies current, validates next and installs it, then
// revokes every rotation token of handle.
func RunChangePassword(ctx context.Context, handle, current, next string, deps PasswordDeps) (PasswordResult, error) {
	cred, err := deps.Credentials.FindByHandle(ctx, handle)
	if err != nil {
		return PasswordResult{}, err
	}
	ok, err := deps.Hasher.Verify(current, cred.PasswordHash)
	if err != nil {
		return PasswordResult{}, err
	}
	if !ok {
		return PasswordResult{}, ErrInvalidCredentials
	}
	if current == next {
		return PasswordResult{}, policyError([]string{password.MsgRecentlyUsed})
	}
	if err := checkPolicy(ctx, handle, next, deps.Policy); err != nil {
		return PasswordResult{}, err
	}
	if err := applyPassword(ctx, cred, next, deps); err != nil {
		return PasswordResult{}, err
	}
	n, err := deps.Sessions.RevokeAll(ctx, handle)
	if err != nil {
		return PasswordResult{}, err
	}
	return PasswordResult{Revoked: n}, nil
}

func checkPolicy(ctx context.Context, principal, raw string, policy Policy) error {
	if err := policyError(policy.ValidateRules(raw)); err != nil {
		return err
	}
	violations, err := policy.ValidateHistory(ctx, principal, raw)
	if err != nil {
		return err
	}
	return policyError(violations)
}

// applyPassword records the superseded hash in history and stores the hash of
// next.
func applyPassword(ctx context.Context, cred *credential.Credential, next string, deps PasswordDeps) error {
	hash, err := deps.Hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := nowOr(deps.Now)

	if deps.Replacer != nil {
		return deps.Replacer.ReplacePassword(ctx, cred.Handle, hash, deps.Policy.HistorySize(), now)
	}

	if err := deps.Policy.Record(ctx, cred.Handle, cred.PasswordHash); err != nil {
		return err
	}
	cred.PasswordHash = hash
	cred.UpdatedAt = now
	if err := deps.Credentials.Save(ctx, cred); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return err
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
