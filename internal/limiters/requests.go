package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alebarre/credauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

// ErrRequestsLimited is returned when a client exceeds its code request budget.
var ErrRequestsLimited = errors.New("code requests rate limited")

// RequestConfig bounds how many code-issuing requests (register, forgot
// password, resend) one client address may make per window.
type RequestConfig struct {
	MaxRequests int
	Window      time.Duration
}

// RequestLimitedError carries the time left in the window.
type RequestLimitedError struct {
	Remaining time.Duration
}

func (e *RequestLimitedError) Error() string {
	return fmt.Sprintf("%v: retry in %s", ErrRequestsLimited, e.Remaining.Round(time.Second))
}

func (e *RequestLimitedError) Unwrap() error {
	return ErrRequestsLimited
}

// CodeRequestLimiter throttles code-issuing requests per client IP.
type CodeRequestLimiter struct {
	window *rate.Window
}

// NewCodeRequestLimiter returns nil when the limit is disabled.
func NewCodeRequestLimiter(client redis.UniversalClient, cfg RequestConfig) *CodeRequestLimiter {
	if client == nil || cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return nil
	}
	return &CodeRequestLimiter{window: rate.NewWindow(client, "cr:ip:", cfg.MaxRequests, cfg.Window)}
}

// Allow counts one request from ip. An empty ip is not limited.
func (l *CodeRequestLimiter) Allow(ctx context.Context, ip string) error {
	if l == nil || ip == "" {
		return nil
	}
	wait, err := l.window.Hit(ctx, ip)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return &RequestLimitedError{Remaining: wait}
	default:
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
}
