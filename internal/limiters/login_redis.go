package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] failure counter, KEYS[2] lock marker.
// ARGV[1] threshold, ARGV[2] cooldown ms, ARGV[3] failure window ms.
// Returns {locked(0|1), failures, remaining ms}.
var recordFailureLua = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[2])
if ttl > 0 then
  return {1, 0, ttl}
end
local n = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
if n >= tonumber(ARGV[1]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
  redis.call('DEL', KEYS[1])
  return {1, n, tonumber(ARGV[2])}
end
return {0, n, 0}
`)

// RedisLoginThrottle keeps counters in Redis so every instance sees the same
// state.
type RedisLoginThrottle struct {
	redis  redis.UniversalClient
	config LoginConfig
}

// NewRedisLoginThrottle returns a Redis-backed throttle.
func NewRedisLoginThrottle(client redis.UniversalClient, cfg LoginConfig) (*RedisLoginThrottle, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisLoginThrottle{redis: client, config: cfg}, nil
}

func failKey(handle string) string { return "lt:fail:" + handle }
func lockKey(handle string) string { return "lt:lock:" + handle }

// Check implements LoginThrottle.
func (l *RedisLoginThrottle) Check(ctx context.Context, handle string) (LoginStatus, error) {
	if l == nil || handle == "" {
		return LoginStatus{}, nil
	}

	pipe := l.redis.Pipeline()
	ttlCmd := pipe.PTTL(ctx, lockKey(handle))
	countCmd := pipe.Get(ctx, failKey(handle))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return LoginStatus{}, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}

	if ttl := ttlCmd.Val(); ttl > 0 {
		return lockedStatus(ttl)
	}
	failures, err := countCmd.Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return LoginStatus{}, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return LoginStatus{State: l.config.stateFor(failures), Failures: failures}, nil
}

// RecordFailure implements LoginThrottle.
func (l *RedisLoginThrottle) RecordFailure(ctx context.Context, handle string) (LoginStatus, error) {
	if l == nil || handle == "" {
		return LoginStatus{}, nil
	}

	res, err := recordFailureLua.Run(ctx, l.redis,
		[]string{failKey(handle), lockKey(handle)},
		l.config.Threshold,
		l.config.Cooldown.Milliseconds(),
		l.config.FailureWindow.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return LoginStatus{}, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	if len(res) != 3 {
		return LoginStatus{}, fmt.Errorf("%w: unexpected script reply", ErrThrottleUnavailable)
	}
	if res[0] == 1 {
		return lockedStatus(time.Duration(res[2]) * time.Millisecond)
	}
	failures := int(res[1])
	return LoginStatus{State: l.config.stateFor(failures), Failures: failures}, nil
}

// Reset implements LoginThrottle. An active lock is left to expire.
func (l *RedisLoginThrottle) Reset(ctx context.Context, handle string) error {
	if l == nil || handle == "" {
		return nil
	}
	if err := l.redis.Del(ctx, failKey(handle)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}

// Unlock implements LoginThrottle.
func (l *RedisLoginThrottle) Unlock(ctx context.Context, handle string) error {
	if l == nil || handle == "" {
		return nil
	}
	if err := l.redis.Del(ctx, failKey(handle), lockKey(handle)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}
