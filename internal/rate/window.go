package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is a Redis fixed-window counter.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	limit  int64
	span   time.Duration
}

// NewWindow allows limit hits per span for each key under prefix.
func NewWindow(client redis.UniversalClient, prefix string, limit int, span time.Duration) *Window {
	return &Window{redis: client, prefix: prefix, limit: int64(limit), span: span}
}

// Hit counts one event for key. Past the budget it returns ErrRateLimited and
// the time left in the current window.
func (w *Window) Hit(ctx context.Context, key string) (time.Duration, error) {
	k := w.prefix + key
	count, err := w.redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := w.redis.PExpire(ctx, k, w.span).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count <= w.limit {
		return 0, nil
	}

	ttl, err := w.redis.PTTL(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl <= 0 {
		ttl = w.span
	}
	return ttl, ErrRateLimited
}

// Reset clears key's counter.
func (w *Window) Reset(ctx context.Context, key string) error {
	if err := w.redis.Del(ctx, w.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
