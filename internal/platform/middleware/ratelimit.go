package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dr-abraham74/paracetamol-OD/internal/platform/auth"
)

// RateLimitConfig holds token-bucket settings for the API group.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// tokenBucket is a refill-on-demand token bucket.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

// take refills by elapsed time, then spends one token. remaining and
// retryAfter are computed under the same lock so response headers cannot
// disagree with the decision.
func (b *tokenBucket) take() (allowed bool, remaining, retryAfter int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), 0
	}
	if b.refillRate <= 0 {
		return false, 0, 1
	}
	return false, 0, int((1-b.tokens)/b.refillRate) + 1
}

// bucketIdleEviction is how long an unused bucket survives before the
// opportunistic sweep drops it.
const bucketIdleEviction = 10 * time.Minute

type bucketEntry struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

// rateLimiterStore holds one bucket per caller key. Stale entries are
// swept opportunistically on lookup, so no background goroutine is needed.
type rateLimiterStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucketEntry
	config    RateLimitConfig
	nextSweep time.Time
}

func newRateLimiterStore(cfg RateLimitConfig) *rateLimiterStore {
	return &rateLimiterStore{
		buckets:   make(map[string]*bucketEntry),
		config:    cfg,
		nextSweep: time.Now().Add(bucketIdleEviction),
	}
}

func (s *rateLimiterStore) bucketFor(key string) *tokenBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.After(s.nextSweep) {
		for k, e := range s.buckets {
			if now.Sub(e.lastSeen) > bucketIdleEviction {
				delete(s.buckets, k)
			}
		}
		s.nextSweep = now.Add(bucketIdleEviction)
	}

	entry, ok := s.buckets[key]
	if !ok {
		entry = &bucketEntry{bucket: newTokenBucket(s.config.RequestsPerSecond, s.config.BurstSize)}
		s.buckets[key] = entry
	}
	entry.lastSeen = now
	return entry.bucket
}

// RateLimit returns a per-caller rate limiting middleware. Authenticated
// callers are keyed by user id so a busy ward behind one NAT address is
// not throttled collectively; anonymous callers fall back to client IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newRateLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = uid
			}

			allowed, remaining, retryAfter := store.bucketFor(key).take()

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
