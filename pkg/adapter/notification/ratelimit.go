package notification

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// IPRateLimiter enforces a per-IP connection rate limit using a token
// bucket per source address. Individual limiters live in an in-memory
// cache with TTL expiration, so a quiet IP's budget resets after the TTL.
type IPRateLimiter struct {
	cache *cache.Cache
	rate  rate.Limit
	burst int
}

// NewIPRateLimiter initializes a limiter with the given sustained rate,
// burst size and per-IP TTL. Entries expire after 2×TTL.
func NewIPRateLimiter(r rate.Limit, burst int, ttl time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		cache: cache.New(ttl, 2*ttl),
		rate:  r,
		burst: burst,
	}
}

// Allow reports whether a connection from the given IP is within its rate
// limit. A nil limiter allows everything.
func (l *IPRateLimiter) Allow(ip string) bool {
	if l == nil {
		return true
	}

	limiter, found := l.cache.Get(ip)
	if !found {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.cache.Set(ip, limiter, cache.DefaultExpiration)
	}
	return limiter.(*rate.Limiter).Allow()
}
