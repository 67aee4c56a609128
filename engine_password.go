package credauth

import (
	"context"
	"errors"
	"strconv"
)

// ChangePassword verifies current, applies the password policy to next and
// installs it. Every rotation token of handle is revoked on success.
func (e *Engine) ChangePassword(ctx context.Context, handle, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	handle = normalizeHandle(handle)

	res, err := e.flows.ChangePassword(ctx, handle, current, next)
	if err != nil {
		mapped := e.fail(ctx, "change password", err)
		switch {
		case errors.Is(mapped, ErrInvalidCredentials):
			e.metricInc(MetricPasswordChangeInvalidCurrent)
		case errors.Is(mapped, ErrPasswordPolicy):
			e.metricInc(MetricPasswordPolicyRejected)
		}
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, handle, "", mapped, nil)
		return mapped
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.metricInc(MetricSessionsRevoked)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, handle, "", nil, revokedMeta(res.Revoked))
	return nil
}

// ForgotPassword issues a reset code to address. It returns nil for unknown
// addresses so callers cannot probe which addresses are registered.
func (e *Engine) ForgotPassword(ctx context.Context, address string) error {
	if err := e.ready(); err != nil {
		return err
	}
	address = normalizeHandle(address)
	if err := e.allowCodeRequest(ctx, "forgot_password", address); err != nil {
		return err
	}

	issued, err := e.flows.ForgotPassword(ctx, address)
	if err != nil {
		mapped := e.fail(ctx, "forgot password", err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, address, "", mapped, nil)
		return mapped
	}
	e.metricInc(MetricResetRequested)
	if issued {
		e.metricInc(MetricCodeIssued)
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, address, "", nil, func() map[string]string {
		return map[string]string{"issued": strconv.FormatBool(issued)}
	})
	return nil
}

// ResetPassword spends a reset code and installs next. The password policy
// runs first, so a rejected password leaves the code usable. Every rotation
// token of the principal is revoked on success.
func (e *Engine) ResetPassword(ctx context.Context, address, code, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	address = normalizeHandle(address)

	res, err := e.flows.ResetPassword(ctx, address, code, next)
	if err != nil {
		mapped := e.fail(ctx, "reset password", err)
		e.codeFailureMetrics(mapped)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, address, "", mapped, nil)
		return mapped
	}

	e.metricInc(MetricCodeConsumed)
	e.metricInc(MetricResetSuccess)
	e.metricInc(MetricSessionsRevoked)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, address, "", nil, revokedMeta(res.Revoked))
	return nil
}

// ResendResetCode reissues a reset code. Within the resend cooldown it
// returns a KindRateLimited error carrying the remaining wait.
func (e *Engine) ResendResetCode(ctx context.Context, address string) error {
	if err := e.ready(); err != nil {
		return err
	}
	address = normalizeHandle(address)
	if err := e.allowCodeRequest(ctx, "resend_reset", address); err != nil {
		return err
	}

	if err := e.flows.ResendResetCode(ctx, address); err != nil {
		mapped := e.fail(ctx, "resend reset code", err)
		if errors.Is(mapped, ErrCodeCooldown) {
			e.metricInc(MetricCodeCooldown)
			e.emitRateLimit(ctx, "code_resend", address, mapped)
		}
		e.emitAudit(ctx, auditEventCodeResend, false, address, "", mapped, purposeMeta("reset"))
		return mapped
	}
	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeResend, true, address, "", nil, purposeMeta("reset"))
	return nil
}

// allowCodeRequest applies the per-IP budget for code-issuing requests.
func (e *Engine) allowCodeRequest(ctx context.Context, scope, address string) error {
	if err := e.requests.Allow(ctx, ClientIPFromContext(ctx)); err != nil {
		mapped := e.fail(ctx, scope, err)
		if KindOf(mapped) == KindRateLimited {
			e.metricInc(MetricCodeRequestLimited)
			e.emitRateLimit(ctx, scope, address, mapped)
		}
		return mapped
	}
	return nil
}

func (e *Engine) codeFailureMetrics(err error) {
	switch {
	case errors.Is(err, ErrPasswordPolicy):
		e.metricInc(MetricPasswordPolicyRejected)
	case errors.Is(err, ErrCodeAttemptsExceeded):
		e.metricInc(MetricCodeFailed)
		e.metricInc(MetricCodeAttemptsExceeded)
	case errors.Is(err, ErrCodeInvalid),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrCodeNotRequested):
		e.metricInc(MetricCodeFailed)
	}
}

func revokedMeta(n int64) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(n, 10)}
	}
}

func purposeMeta(purpose string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"purpose": purpose}
	}
}
