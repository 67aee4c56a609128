package credauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alebarre/credauth/credential"
	internalaudit "github.com/alebarre/credauth/internal/audit"
	"github.com/alebarre/credauth/internal/errutil"
	"github.com/alebarre/credauth/internal/flows"
	"github.com/alebarre/credauth/internal/limiters"
	"github.com/alebarre/credauth/jwt"
	"github.com/alebarre/credauth/otp"
	"github.com/alebarre/credauth/password"
	"github.com/alebarre/credauth/session"
	"github.com/go-playground/validator/v10"
)

// Engine is the public boundary of the credential and session lifecycle.
// It is safe for concurrent use after Build.
type Engine struct {
	config      Config
	flows       flows.Service
	credentials credential.Store
	signer      *jwt.Signer
	sessions    *session.Manager
	codes       *otp.Manager
	hasher      *password.Hasher
	policy      *password.Policy
	throttle    limiters.LoginThrottle
	requests    *limiters.CodeRequestLimiter
	validate    *validator.Validate
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) ready() error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}

func (e *Engine) warn(ctx context.Context, msg string, args ...any) {
	e.logger.WarnContext(ctx, "credauth: "+msg, args...)
}

// fail maps err onto the public taxonomy and logs internal failures.
func (e *Engine) fail(ctx context.Context, op string, err error) error {
	mapped := mapError(err)
	if mapped.Kind == KindInternal {
		errutil.LogError(ctx, e.logger, "credauth: "+op+" failed", err)
	}
	return mapped
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// mapError converts component errors into *Error. Errors that are already
// *Error pass through unchanged.
func mapError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	var (
		policyErr   *flows.PolicyError
		cooldownErr *otp.CooldownError
		lockedErr   *limiters.LockedError
		limitedErr  *limiters.RequestLimitedError
	)
	switch {
	case errors.As(err, &policyErr):
		return policyViolation(err, policyErr.Violations)
	case errors.As(err, &cooldownErr):
		return rateLimited(ErrCodeCooldown, err, cooldownErr.Remaining)
	case errors.As(err, &lockedErr):
		return rateLimited(ErrLoginLocked, err, lockedErr.Remaining)
	case errors.As(err, &limitedErr):
		return rateLimited(ErrCodeRequestsLimited, err, limitedErr.Remaining)

	case errors.Is(err, flows.ErrInvalidCredentials):
		return newError(KindInvalid, ErrInvalidCredentials, err)
	case errors.Is(err, flows.ErrDisabled):
		return newError(KindInvalid, ErrAccountDisabled, err)
	case errors.Is(err, flows.ErrLastAdmin):
		return newError(KindConflict, ErrLastAdmin, err)
	case errors.Is(err, flows.ErrAlreadyVerified):
		return newError(KindConflict, ErrAlreadyVerified, err)
	case errors.Is(err, flows.ErrNoRoles), errors.Is(err, credential.ErrRoleInvalid):
		return newError(KindInvalid, ErrRoleInvalid, err)
	case errors.Is(err, flows.ErrPrincipalInactive):
		return newError(KindInvalid, ErrRefreshInvalid, err)

	case errors.Is(err, otp.ErrMismatch), errors.Is(err, otp.ErrUsed):
		return newError(KindInvalid, ErrCodeInvalid, err)
	case errors.Is(err, otp.ErrExpired):
		return newError(KindInvalid, ErrCodeExpired, err)
	case errors.Is(err, otp.ErrAttemptsExceeded):
		return newError(KindInvalid, ErrCodeAttemptsExceeded, err)
	case errors.Is(err, otp.ErrNotRequested):
		return newError(KindInvalid, ErrCodeNotRequested, err)
	case errors.Is(err, otp.ErrUnknownAddress), errors.Is(err, credential.ErrNotFound):
		return newError(KindNotFound, ErrUnknownPrincipal, err)
	case errors.Is(err, credential.ErrExists):
		return newError(KindConflict, ErrAccountExists, err)

	case errors.Is(err, session.ErrAlreadyRotated):
		return newError(KindConflict, ErrRefreshAlreadyRotated, err)
	case errors.Is(err, session.ErrUnknown),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrExpired):
		return newError(KindInvalid, ErrRefreshInvalid, err)

	case errors.Is(err, jwt.ErrMalformed), errors.Is(err, jwt.ErrExpired):
		return newError(KindInvalid, ErrTokenInvalid, err)

	case errors.Is(err, ErrEngineNotReady):
		return newError(KindInternal, ErrEngineNotReady, nil)
	default:
		return internalError(err)
	}
}
