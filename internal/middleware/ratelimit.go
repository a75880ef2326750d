package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/pft-interp-server/internal/domain"
)

// Buckets idle longer than this are dropped when a new client arrives.
const clientIdleEviction = 10 * time.Minute

// RateLimit throttles requests per client address using a token bucket
// per source. Disabled configuration yields a pass-through handler.
func RateLimit(cfg domain.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limiter := newClientLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":          "Rate limit exceeded",
				"correlation_id": c.GetString("correlation_id"),
			})
			return
		}
		c.Next()
	}
}

type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	return &clientLimiter{
		clients: make(map[string]*clientBucket),
		limit:   limit,
		burst:   burst,
	}
}

func (l *clientLimiter) allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	bucket, ok := l.clients[clientIP]
	if !ok {
		l.evictStale(now)
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientIP] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.Allow()
}

// evictStale drops buckets idle past the eviction window. Callers must
// hold l.mu.
func (l *clientLimiter) evictStale(now time.Time) {
	cutoff := now.Add(-clientIdleEviction)
	for ip, bucket := range l.clients {
		if bucket.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}
