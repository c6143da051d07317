package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/auth"
	"github.com/craftscale/genbridge/internal/config"
	"github.com/craftscale/genbridge/internal/metrics"
)

// tokenBucket is a single tenant's budget for one route family.
// Refill is continuous: elapsed * rate, capped at capacity.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(capacity int, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow consumes one token if available. When denied it returns the
// instant the next token becomes available, for Retry-After.
func (tb *tokenBucket) allow() (bool, int, time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true, int(tb.tokens), now
	}

	secondsUntilNext := (1.0 - tb.tokens) / tb.refillRate
	return false, 0, now.Add(time.Duration(secondsUntilNext * float64(time.Second)))
}

// rateLimiter manages per-tenant buckets for one route family.
type rateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	limit   config.RateLimit
}

func newRateLimiter(limit config.RateLimit) *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[string]*tokenBucket),
		limit:   limit,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *rateLimiter) getBucket(tenantID string) *tokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[tenantID]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if bucket, exists := rl.buckets[tenantID]; exists {
		return bucket
	}
	bucket = newTokenBucket(rl.limit.Capacity, rl.limit.RefillPerSec)
	rl.buckets[tenantID] = bucket
	return bucket
}

func (rl *rateLimiter) allow(tenantID string) (bool, int, time.Time) {
	return rl.getBucket(tenantID).allow()
}

// cleanupLoop drops buckets idle for over an hour so tenant churn does
// not grow the map without bound.
func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for tenantID, bucket := range rl.buckets {
			bucket.mu.Lock()
			if time.Since(bucket.lastRefill) > time.Hour {
				delete(rl.buckets, tenantID)
			}
			bucket.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}

// rateLimit enforces the per-tenant budget for one route family. Each
// family gets its own limiter so a 3D burst cannot starve image calls.
func (s *Server) rateLimit(family string) func(http.Handler) http.Handler {
	limit, ok := s.RateLimits[family]
	if !ok {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newRateLimiter(limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := auth.TenantFrom(r.Context())
			if tenant == nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, nextToken := limiter.allow(tenant.ID.String())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Capacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				retryAfter := int(time.Until(nextToken).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				metrics.RateLimited.WithLabelValues(family).Inc()
				log.Ctx(r.Context()).Warn().
					Str("tenant_id", tenant.ID.String()).
					Str("family", family).
					Int("retry_after", retryAfter).
					Msg("rate limit exceeded")

				writeError(w, http.StatusTooManyRequests,
					"Rate limit exceeded. Please retry after "+strconv.Itoa(retryAfter)+" seconds.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
