package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/clicloop/internal/types"
	"golang.org/x/time/rate"
)

// maxLocalKeys bounds the in-process limiter table; it is reset when exceeded.
const maxLocalKeys = 10000

// LocalLimiter is a per-process token bucket per key. It admits the same average
// rate as the sliding window (limit per window, burst of limit) but does not share
// state across instances.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    int
	every    rate.Limit
	now      func() time.Time
}

// NewLocalLimiter creates an in-process limiter admitting limit requests per window.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		every:    rate.Limit(float64(limit) / window.Seconds()),
		now:      time.Now,
	}
}

func (l *LocalLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	if len(l.limiters) >= maxLocalKeys {
		l.limiters = make(map[string]*rate.Limiter)
	}

	lim := rate.NewLimiter(l.every, l.limit)
	l.limiters[key] = lim
	return lim
}

// Allow consumes one token for key when available.
func (l *LocalLimiter) Allow(_ context.Context, key string) (*types.RateLimitDecision, error) {
	lim := l.get(key)
	now := l.now()

	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)

	var wait time.Duration
	if allowed {
		// time until the bucket is full again
		wait = l.secondsFor(float64(l.limit) - tokens)
	} else {
		wait = l.secondsFor(1 - tokens)
	}

	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	return &types.RateLimitDecision{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     now.Add(wait),
	}, nil
}

func (l *LocalLimiter) secondsFor(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	return time.Duration(tokens / float64(l.every) * float64(time.Second))
}
