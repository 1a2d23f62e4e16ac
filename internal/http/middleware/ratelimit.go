package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to a rate-limit bucket identity.
type KeyFunc func(*gin.Context) string

// KeyByChatOrIP buckets requests on /chats/:chat_id routes per chat and
// everything else per client IP. Keys are prefixed so the namespaces never
// collide.
func KeyByChatOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if chat := strings.TrimSpace(c.Param("chat_id")); chat != "" {
			return "chat:" + chat
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-process token-bucket limiter with one bucket per key.
// Idle buckets are evicted opportunistically. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc
	skip  map[string]struct{}

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
	now      func() time.Time
}

// gcEvery is the number of lookups between idle-bucket sweeps.
const gcEvery = 5000

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (coerced to >= 1). Requests whose route is in skipRoutes are never
// limited.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc, skipRoutes ...string) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	skip := make(map[string]struct{}, len(skipRoutes))
	for _, r := range skipRoutes {
		skip[r] = struct{}{}
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		skip:     skip,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

// limiterFor returns the bucket for key, creating it on first use. The sweep
// runs before the lookup so a stale bucket for key is evicted, not refreshed.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= gcEvery {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Handler enforces the limits. Rejected requests get 429 with Retry-After
// and the standard error envelope. Idempotent replays flagged by
// IdempotencyValidator do not spend a token.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := rl.skip[c.FullPath()]; ok || IsRateBypass(c) {
			c.Next()
			return
		}
		if rl.limiterFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(RequestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
