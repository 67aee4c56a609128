package credauth

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// UpdateRoles replaces the roles of handle. Labels such as "admin" are
// normalized to "ROLE_ADMIN" and checked against the allow-list. Removing
// the admin role from the last admin fails with ErrLastAdmin.
func (e *Engine) UpdateRoles(ctx context.Context, handle string, roles []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	handle = normalizeHandle(handle)

	cred, err := e.flows.UpdateRoles(ctx, handle, roles)
	if err != nil {
		mapped := e.fail(ctx, "update roles", err)
		if errors.Is(mapped, ErrLastAdmin) {
			e.metricInc(MetricLastAdminRejected)
		}
		e.emitAudit(ctx, auditEventRolesUpdated, false, handle, "", mapped, nil)
		return mapped
	}
	e.metricInc(MetricRolesUpdated)
	e.emitAudit(ctx, auditEventRolesUpdated, true, handle, "", nil, func() map[string]string {
		return map[string]string{"roles": strings.Join(cred.RoleLabels(), ",")}
	})
	return nil
}

// DeleteCredential removes handle and revokes its rotation tokens. Deleting
// the last admin fails with ErrLastAdmin.
func (e *Engine) DeleteCredential(ctx context.Context, handle string) error {
	if err := e.ready(); err != nil {
		return err
	}
	handle = normalizeHandle(handle)

	n, err := e.flows.DeleteCredential(ctx, handle)
	if err != nil {
		mapped := e.fail(ctx, "delete credential", err)
		if errors.Is(mapped, ErrLastAdmin) {
			e.metricInc(MetricLastAdminRejected)
		}
		e.emitAudit(ctx, auditEventCredentialDeleted, false, handle, "", mapped, nil)
		return mapped
	}
	e.metricInc(MetricCredentialDeleted)
	e.emitAudit(ctx, auditEventCredentialDeleted, true, handle, "", nil, revokedMeta(n))
	return nil
}

// SetEnabled enables or disables handle. Disabling revokes its rotation
// tokens; outstanding session tokens stay valid until they expire.
func (e *Engine) SetEnabled(ctx context.Context, handle string, enabled bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	handle = normalizeHandle(handle)

	n, err := e.flows.SetEnabled(ctx, handle, enabled)
	if err != nil {
		mapped := e.fail(ctx, "set enabled", err)
		e.emitAudit(ctx, auditEventCredentialStatus, false, handle, "", mapped, nil)
		return mapped
	}
	if !enabled {
		e.metricInc(MetricCredentialDisabled)
	}
	e.emitAudit(ctx, auditEventCredentialStatus, true, handle, "", nil, func() map[string]string {
		return map[string]string{
			"enabled": strconv.FormatBool(enabled),
			"revoked": strconv.FormatInt(n, 10),
		}
	})
	return nil
}

// SeedAdmin creates an enabled administrator when no credential holds
// ROLE_ADMIN. It reports whether one was created. The password is not
// checked against the policy so that bootstrap secrets from deployment
// tooling are accepted as given.
func (e *Engine) SeedAdmin(ctx context.Context, handle, password string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	handle = normalizeHandle(handle)
	if handle == "" || password == "" {
		return false, newError(KindInvalid, ErrInvalidCredentials, nil)
	}

	created, err := e.flows.SeedAdmin(ctx, handle, password)
	if err != nil {
		return false, e.fail(ctx, "seed admin", err)
	}
	if created {
		e.emitAudit(ctx, auditEventAdminSeeded, true, handle, "", nil, nil)
	}
	return created, nil
}

// UnlockLogin clears the failure counter and any active login lock of
// handle. It does not change the credential.
func (e *Engine) UnlockLogin(ctx context.Context, handle string) error {
	if err := e.ready(); err != nil {
		return err
	}
	handle = normalizeHandle(handle)
	if handle == "" {
		return newError(KindInvalid, ErrInvalidCredentials, nil)
	}

	if err := e.throttle.Unlock(ctx, handle); err != nil {
		mapped := e.fail(ctx, "unlock login", err)
		e.emitAudit(ctx, auditEventLoginUnlocked, false, handle, "", mapped, nil)
		return mapped
	}
	e.emitAudit(ctx, auditEventLoginUnlocked, true, handle, "", nil, nil)
	return nil
}

// PurgeExpired deletes rotation tokens and one-time codes that expired
// before now.
func (e *Engine) PurgeExpired(ctx context.Context) (tokens, codes int64, err error) {
	if err := e.ready(); err != nil {
		return 0, 0, err
	}
	cutoff := e.now().UTC()

	tokens, err = e.sessions.Purge(ctx, cutoff)
	if err != nil {
		return 0, 0, e.fail(ctx, "purge rotation tokens", err)
	}
	codes, err = e.codes.Purge(ctx, cutoff)
	if err != nil {
		return tokens, 0, e.fail(ctx, "purge codes", err)
	}
	e.emitAudit(ctx, auditEventPurge, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"tokens": strconv.FormatInt(tokens, 10),
			"codes":  strconv.FormatInt(codes, 10),
		}
	})
	return tokens, codes, nil
}
