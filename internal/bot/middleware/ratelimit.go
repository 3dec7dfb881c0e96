package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vpn-shop-bot/internal/errors"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps a token bucket per user
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[int64]*limiterEntry
	every   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

// NewRateLimiter allows maxPerMinute requests per user with the given burst
func NewRateLimiter(maxPerMinute, burst int) *RateLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 20
	}
	if burst <= 0 {
		burst = 5
	}

	return &RateLimiter{
		limits:  make(map[int64]*limiterEntry),
		every:   rate.Every(time.Minute / time.Duration(maxPerMinute)),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Check checks if a user is within rate limits
func (r *RateLimiter) Check(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.limits[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.every, r.burst)}
		r.limits[userID] = entry
	}
	entry.lastSeen = now

	if !entry.limiter.AllowN(now, 1) {
		return errors.RateLimitExceeded("تعداد درخواست‌ها زیاد است، کمی صبر کنید")
	}
	return nil
}

// Cleanup drops limiters of users idle for a while
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for userID, entry := range r.limits {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			delete(r.limits, userID)
		}
	}
}
