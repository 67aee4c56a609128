package credauth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind classifies every error returned by Engine methods. Transport layers
// map kinds to status codes.
type Kind int

const (
	// KindInternal covers datastore, signing and other infrastructure failures.
	KindInternal Kind = iota
	// KindNotFound means an unknown principal or address. Most flows avoid it
	// to not leak existence.
	KindNotFound
	// KindInvalid covers malformed, expired or mismatched tokens and codes,
	// bad credentials and invalid input.
	KindInvalid
	// KindConflict covers duplicates, rotation races and the last-admin guard.
	KindConflict
	// KindRateLimited covers cooldowns and lockouts. It always carries a
	// positive RetryAfter.
	KindRateLimited
	// KindPolicyViolation carries every violated password rule.
	KindPolicyViolation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindPolicyViolation:
		return "policy_violation"
	default:
		return "internal"
	}
}

var (
	ErrEngineNotReady = errors.New("engine not initialized")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrLoginLocked        = errors.New("too many failed login attempts")

	ErrTokenInvalid          = errors.New("session token invalid")
	ErrRefreshInvalid        = errors.New("rotation token invalid")
	ErrRefreshAlreadyRotated = errors.New("rotation token already rotated")

	ErrCodeInvalid          = errors.New("code invalid")
	ErrCodeExpired          = errors.New("code expired")
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	ErrCodeNotRequested     = errors.New("no code requested")
	ErrCodeCooldown         = errors.New("code resend cooldown active")
	ErrCodeRequestsLimited  = errors.New("too many code requests")

	ErrPasswordPolicy = errors.New("password policy violation")

	ErrRegistrationInvalid = errors.New("invalid registration request")
	ErrAccountExists       = errors.New("account already exists")
	ErrAlreadyVerified     = errors.New("account already verified")
	ErrUnknownPrincipal    = errors.New("unknown principal")
	ErrRoleInvalid         = errors.New("invalid role")
	ErrLastAdmin           = errors.New("operation would remove the last admin")

	ErrInternal = errors.New("internal error")
)

const (
	publicTokenMessage    = "invalid or expired token"
	publicInternalMessage = "internal error"
)

// Error is the typed error returned by Engine methods. It wraps a sentinel
// from this package and keeps the underlying cause for logging.
type Error struct {
	Kind Kind
	// Err is the package sentinel, for example ErrCodeInvalid.
	Err error
	// Cause is the component error that produced Err. Never shown to users.
	Cause      error
	RetryAfter time.Duration
	Violations []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v", e.Err, e.Cause)
	}
	return e.Err.Error()
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func newError(kind Kind, sentinel, cause error) *Error {
	return &Error{Kind: kind, Err: sentinel, Cause: cause}
}

func rateLimited(sentinel, cause error, wait time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Err: sentinel, Cause: cause, RetryAfter: roundUpSeconds(wait)}
}

func policyViolation(cause error, violations []string) *Error {
	return &Error{
		Kind:       KindPolicyViolation,
		Err:        ErrPasswordPolicy,
		Cause:      cause,
		Violations: append([]string(nil), violations...),
	}
}

func internalError(cause error) *Error {
	return newError(KindInternal, ErrInternal, cause)
}

// roundUpSeconds rounds d up to a whole number of seconds, never below one.
func roundUpSeconds(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// KindOf returns the kind of err. Errors that did not come from an Engine
// method are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryAfter returns the wait carried by a rate-limit error, or zero.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimited {
		return e.RetryAfter
	}
	return 0
}

// RetryAfterSeconds is RetryAfter in whole seconds.
func RetryAfterSeconds(err error) int64 {
	return int64(RetryAfter(err) / time.Second)
}

// Violations returns the password rule violations carried by err.
func Violations(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}

// PublicMessage returns a message safe to show end users. Token errors never
// reveal whether the token was expired or forged, and internal errors never
// reveal their cause.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return publicInternalMessage
	}
	switch {
	case errors.Is(e.Err, ErrTokenInvalid),
		errors.Is(e.Err, ErrRefreshInvalid),
		errors.Is(e.Err, ErrRefreshAlreadyRotated):
		return publicTokenMessage
	case e.Kind == KindRateLimited:
		return fmt.Sprintf("%v; retry in %d seconds", e.Err, int64(e.RetryAfter/time.Second))
	default:
		return e.Err.Error()
	}
}
