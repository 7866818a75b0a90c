// Package ratelimit provides the per-user sliding-window quota for the AI proxy.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Default quota values.
const (
	DefaultLimit     = 20
	DefaultWindow    = time.Minute
	DefaultKeyPrefix = "ratelimit:ai:"
)

// Limiter decides whether one more request fits in a key's quota.
type Limiter interface {
	Allow(ctx context.Context, key string) (*types.RateLimitDecision, error)
}

// slidingWindowScript keeps one sorted-set member per accepted request, scored by
// its arrival time in milliseconds. Expired members are trimmed first; a request
// is recorded only when it is admitted.
//
// Returns {allowed, count, oldestScore}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
	local count = redis.call('ZCARD', key)

	local allowed = 0
	if count < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window)
		count = count + 1
		allowed = 1
	end

	local oldest = now
	local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if first[2] then
		oldest = tonumber(first[2])
	end

	return {allowed, count, oldest}
`)

// SlidingWindowConfig holds configuration for the sliding-window limiter.
type SlidingWindowConfig struct {
	// Redis holds the request log. Required.
	Redis redis.Cmdable

	// Limit is the number of requests admitted per window. Default: 20.
	Limit int

	// Window is the window length. Default: 60s.
	Window time.Duration

	// KeyPrefix is prepended to every key. Default: "ratelimit:ai:".
	KeyPrefix string

	// Fallback decides when Redis is unreachable. Optional; without it Redis errors are returned.
	Fallback Limiter

	// Now is the clock. Default: time.Now.
	Now func() time.Time

	Metrics *Metrics
	Logger  *logging.Logger
}

// Validate checks if the configuration is valid.
func (c *SlidingWindowConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if c.Window < 0 {
		return errors.New("window cannot be negative")
	}
	if c.Window > 0 && c.Window < time.Millisecond {
		return fmt.Errorf("window %s is below millisecond resolution", c.Window)
	}
	return nil
}

// SlidingWindowLimiter is a Redis-backed sliding-window log.
type SlidingWindowLimiter struct {
	redis     redis.Cmdable
	limit     int
	window    time.Duration
	keyPrefix string
	fallback  Limiter
	now       func() time.Time
	metrics   *Metrics
	logger    *logging.Logger
}

// NewSlidingWindowLimiter creates a limiter with the given configuration.
func NewSlidingWindowLimiter(cfg *SlidingWindowConfig) (*SlidingWindowLimiter, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l := &SlidingWindowLimiter{
		redis:     cfg.Redis,
		limit:     cfg.Limit,
		window:    cfg.Window,
		keyPrefix: cfg.KeyPrefix,
		fallback:  cfg.Fallback,
		now:       cfg.Now,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}

	if l.limit == 0 {
		l.limit = DefaultLimit
	}
	if l.window == 0 {
		l.window = DefaultWindow
	}
	if l.keyPrefix == "" {
		l.keyPrefix = DefaultKeyPrefix
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.metrics == nil {
		l.metrics = NewMetrics()
	}
	if l.logger == nil {
		l.logger = logging.GetGlobalLogger()
	}

	return l, nil
}

// Limit returns the configured requests per window.
func (l *SlidingWindowLimiter) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *SlidingWindowLimiter) Window() time.Duration { return l.window }

// Metrics returns the limiter counters.
func (l *SlidingWindowLimiter) Metrics() *Metrics { return l.metrics }

// Allow records a request for key if it fits in the window.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (*types.RateLimitDecision, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	windowMs := l.window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, l.redis, []string{l.keyPrefix + key},
		nowMs, windowMs, l.limit, member).Int64Slice()
	if err != nil {
		return l.degrade(ctx, key, err)
	}
	if len(res) != 3 {
		return l.degrade(ctx, key, fmt.Errorf("unexpected script result %v", res))
	}

	allowed := res[0] == 1
	count := int(res[1])
	reset := time.UnixMilli(res[2] + windowMs)

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	l.metrics.record(allowed, false)

	return &types.RateLimitDecision{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

func (l *SlidingWindowLimiter) degrade(ctx context.Context, key string, cause error) (*types.RateLimitDecision, error) {
	if l.fallback == nil {
		return nil, fmt.Errorf("rate limit check failed: %w", cause)
	}

	l.logger.WithError(cause).WithField("key", key).Warn("redis rate limit unavailable, using in-process limiter")

	d, err := l.fallback.Allow(ctx, key)
	if err != nil {
		return nil, err
	}
	l.metrics.record(d.Allowed, true)
	return d, nil
}
