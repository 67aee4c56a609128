package credauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventLogout                = "logout"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventCodeResend            = "code_resend"
	auditEventSignup                = "signup"
	auditEventSignupVerify          = "signup_verify"
	auditEventRolesUpdated          = "roles_updated"
	auditEventCredentialDeleted     = "credential_deleted"
	auditEventCredentialStatus      = "credential_status_change"
	auditEventAdminSeeded           = "admin_seeded"
	auditEventLoginUnlocked         = "login_unlocked"
	auditEventPurge                 = "purge"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrLastAdmin          AuditErrorCode = "last_admin"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit never blocks on a full buffer when DropIfFull is set. Principal
// is the handle; codes and passwords are never part of an event.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principal string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Principal: principal,
		TokenID:   tokenID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, principal string, err error) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, principal, "", err, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrLoginLocked),
		errors.Is(err, ErrCodeCooldown),
		errors.Is(err, ErrCodeRequestsLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshAlreadyRotated):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrCodeAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrCodeInvalid),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrCodeNotRequested):
		return auditErrInvalidCode
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrUnknownPrincipal):
		return auditErrNotFound
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrAlreadyVerified):
		return auditErrDuplicate
	case errors.Is(err, ErrLastAdmin):
		return auditErrLastAdmin
	case errors.Is(err, ErrRegistrationInvalid),
		errors.Is(err, ErrRoleInvalid):
		return auditErrInvalidInput
	default:
		return auditErrInternal
	}
}
