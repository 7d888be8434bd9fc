package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter throttles each client IP to a requests-per-minute budget
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns nil when requestsPerMinute is not positive, which
// disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		window:  5 * time.Minute,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Handler returns the gin middleware. Clients are keyed on gin's ClientIP,
// which only honours forwarding headers from the engine's trusted proxies.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please slow down",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst), lastSeen: now}
		r.clients[key] = entry
		r.cleanupLocked(now)
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (r *RateLimiter) cleanupLocked(now time.Time) {
	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > r.window {
			delete(r.clients, key)
		}
	}
}
