package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLocked is returned while a principal is locked out.
	ErrLocked = errors.New("login locked")
	// ErrThrottleUnavailable wraps backend failures.
	ErrThrottleUnavailable = errors.New("login throttle backend unavailable")
)

// State is the throttle state of one principal.
type State int

const (
	StateNormal State = iota
	StateWarning
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateWarning:
		return "warning"
	case StateLocked:
		return "locked"
	default:
		return "normal"
	}
}

// LoginConfig configures a login throttle.
type LoginConfig struct {
	// Threshold is the failure count that triggers a lock.
	Threshold int
	// WarnThreshold moves a principal to StateWarning. Zero disables it.
	WarnThreshold int
	// Cooldown is how long a lock lasts.
	Cooldown time.Duration
	// FailureWindow expires an idle failure counter.
	FailureWindow time.Duration
}

// Validate checks the configuration.
func (c LoginConfig) Validate() error {
	if c.Threshold <= 0 {
		return errors.New("lockout threshold must be > 0")
	}
	if c.WarnThreshold < 0 || c.WarnThreshold >= c.Threshold {
		return errors.New("lockout warn threshold must be in [0, threshold)")
	}
	if c.Cooldown <= 0 {
		return errors.New("lockout cooldown must be > 0")
	}
	if c.FailureWindow <= 0 {
		return errors.New("lockout failure window must be > 0")
	}
	return nil
}

func (c LoginConfig) stateFor(failures int) State {
	if c.WarnThreshold > 0 && failures >= c.WarnThreshold {
		return StateWarning
	}
	return StateNormal
}

// LoginStatus is a snapshot of a principal's throttle state.
type LoginStatus struct {
	State     State
	Failures  int
	Remaining time.Duration
}

// LockedError carries the remaining lockout time.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%v: retry in %s", ErrLocked, e.Remaining.Round(time.Second))
}

func (e *LockedError) Unwrap() error {
	return ErrLocked
}

// LoginThrottle counts failed authentications per principal.
type LoginThrottle interface {
	// Check returns a *LockedError while handle is locked.
	Check(ctx context.Context, handle string) (LoginStatus, error)
	// RecordFailure counts a failure. The failure that reaches the threshold
	// returns a *LockedError.
	RecordFailure(ctx context.Context, handle string) (LoginStatus, error)
	// Reset zeroes the failure counter after a success.
	Reset(ctx context.Context, handle string) error
	// Unlock clears the counter and any active lock.
	Unlock(ctx context.Context, handle string) error
}

func lockedStatus(remaining time.Duration) (LoginStatus, error) {
	return LoginStatus{State: StateLocked, Remaining: remaining}, &LockedError{Remaining: remaining}
}
