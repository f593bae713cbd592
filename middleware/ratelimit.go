package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	visitorTTL     = 10 * time.Minute
	visitorGCEvery = 5 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorTable tracks one token bucket per client IP and evicts buckets idle
// longer than visitorTTL.
type visitorTable struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

func (t *visitorTable) get(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (t *visitorTable) gc() {
	cutoff := time.Now().Add(-visitorTTL)
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, v := range t.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(t.visitors, ip)
		}
	}
}

// RateLimit applies per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	table := &visitorTable{
		visitors: make(map[string]*visitor),
		limit:    r,
		burst:    b,
	}

	go func() {
		ticker := time.NewTicker(visitorGCEvery)
		defer ticker.Stop()
		for range ticker.C {
			table.gc()
		}
	}()

	return func(c *gin.Context) {
		if !table.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
