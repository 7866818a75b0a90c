package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/types"
)

// Response headers describing the quota.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// KeyFunc extracts the quota key from a request. ok=false skips limiting.
type KeyFunc func(r *http.Request) (key string, ok bool)

// DeniedFunc writes the response for a rejected request.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, d *types.RateLimitDecision, retryAfter int)

// ErrorFunc writes the response when the limiter itself fails.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareConfig wires a limiter into an HTTP chain.
type MiddlewareConfig struct {
	Limiter  Limiter
	Key      KeyFunc
	OnDenied DeniedFunc
	OnError  ErrorFunc
	Now      func() time.Time
}

// Middleware enforces the quota before the wrapped handler runs. Every response
// after the check carries the X-RateLimit-* headers; denied requests also get
// Retry-After and never reach the handler.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := cfg.Key(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			d, err := cfg.Limiter.Allow(r.Context(), key)
			if err != nil {
				logging.FromContext(r.Context()).WithError(err).Error("rate limit check failed")
				cfg.OnError(w, r, err)
				return
			}

			SetHeaders(w.Header(), d)

			if !d.Allowed {
				retryAfter := RetryAfterSeconds(d, now())
				w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
				cfg.OnDenied(w, r, d, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the quota headers. Reset is unix milliseconds.
func SetHeaders(h http.Header, d *types.RateLimitDecision) {
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(d.Reset.UnixMilli(), 10))
}

// RetryAfterSeconds rounds the wait until reset up to whole seconds, minimum one.
func RetryAfterSeconds(d *types.RateLimitDecision, now time.Time) int {
	return int(math.Ceil(d.RetryAfter(now).Seconds()))
}
