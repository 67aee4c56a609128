package credauth

import (
	"context"
	"strconv"
	"time"

	"github.com/alebarre/credauth/internal/flows"
	"github.com/alebarre/credauth/jwt"
)

// Login authenticates handle and password and returns a session token plus
// a rotation token.
//
// Unknown handles, wrong passwords and disabled accounts each count as a
// failed attempt for the handle. Once the lockout threshold is reached,
// Login returns a KindRateLimited error without reading the credential store.
func (e *Engine) Login(ctx context.Context, handle, password string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	handle = normalizeHandle(handle)

	res := e.flows.Login(ctx, handle, password)
	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
		err := e.fail(ctx, "login", res.Err)
		e.emitAudit(ctx, auditEventLoginLocked, false, handle, "", err, nil)
		e.emitRateLimit(ctx, "login", handle, err)
		return nil, err
	case flows.LoginFailureCredentials, flows.LoginFailureDisabled:
		e.metricInc(MetricLoginFailure)
		err := e.fail(ctx, "login", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, handle, "", err, func() map[string]string {
			return map[string]string{
				"throttle_state": res.Throttle.State.String(),
				"failures":       strconv.Itoa(res.Throttle.Failures),
			}
		})
		return nil, err
	default:
		e.metricInc(MetricLoginFailure)
		err := e.fail(ctx, "login", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, handle, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	if res.Rehashed {
		e.metricInc(MetricPasswordRehashed)
	}
	e.emitAudit(ctx, auditEventLoginSuccess, true, handle, "", nil, nil)
	return authResult(res.Tokens), nil
}

// Refresh exchanges a rotation token for a new session token and a new
// rotation token. The presented token is revoked. Of several concurrent calls
// with the same token exactly one succeeds. A loser that lost the swap gets
// ErrRefreshAlreadyRotated (KindConflict); replaying a token already seen as
// revoked gets ErrRefreshInvalid (KindInvalid).
func (e *Engine) Refresh(ctx context.Context, rotationToken string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := e.flows.Refresh(ctx, rotationToken)
	if res.Failure != flows.RefreshFailureNone {
		err := e.fail(ctx, "refresh", res.Err)
		e.metricInc(MetricRefreshFailure)
		if res.Failure == flows.RefreshFailureReuse {
			e.metricInc(MetricRefreshRotationConflict)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.Principal, res.ParentID, err, nil)
			return nil, err
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Principal, res.ParentID, err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Principal, res.ParentID, nil, nil)
	return authResult(res.Tokens), nil
}

// Logout revokes the presented rotation token. Unknown or already revoked
// tokens are not an error.
func (e *Engine) Logout(ctx context.Context, rotationToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.flows.Logout(ctx, rotationToken); err != nil {
		return e.fail(ctx, "logout", err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", "", nil, nil)
	return nil
}

// LogoutAll revokes every rotation token of handle and returns how many
// were live.
func (e *Engine) LogoutAll(ctx context.Context, handle string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	handle = normalizeHandle(handle)
	n, err := e.flows.LogoutAll(ctx, handle)
	if err != nil {
		return 0, e.fail(ctx, "logout all", err)
	}
	e.metricInc(MetricSessionsRevoked)
	e.emitAudit(ctx, auditEventLogout, true, handle, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(n, 10), "scope": "all"}
	})
	return n, nil
}

// ValidateSessionToken verifies a session token and returns its claims.
// Expired and forged tokens both yield ErrTokenInvalid.
func (e *Engine) ValidateSessionToken(ctx context.Context, token string) (*jwt.Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	claims, err := e.signer.Verify(token)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		return nil, mapError(err)
	}
	return claims, nil
}

func authResult(t flows.Tokens) *AuthResult {
	return &AuthResult{
		Principal:         t.Principal,
		Roles:             t.Roles,
		SessionToken:      t.SessionToken,
		TokenType:         TokenTypeBearer,
		ExpiresIn:         t.ExpiresIn,
		RotationToken:     t.RotationToken,
		RotationExpiresAt: t.RotationExpiresAt,
	}
}
