package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/config"
	"github.com/swiftbus/booking-backend/internal/utils"
	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle client's limiter is kept
const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter holds one token bucket per client IP
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

// NewIPRateLimiter allows cfg.Requests per cfg.WindowSeconds with a burst of cfg.Requests
func NewIPRateLimiter(cfg config.RateLimitConfig) *IPRateLimiter {
	window := time.Duration(cfg.WindowSeconds) * time.Second
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(cfg.Requests)),
		burst:    cfg.Requests,
	}
}

func (l *IPRateLimiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Cleanup drops limiters of clients idle for longer than visitorTTL
func (l *IPRateLimiter) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// RateLimit rejects clients that exceed their bucket with 429
func RateLimit(limiter *IPRateLimiter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := utils.GetRealIP(c)
		if !limiter.get(ip, time.Now()).Allow() {
			logger.WithFields(logrus.Fields{
				"ip":   ip,
				"path": c.Request.URL.Path,
			}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"message":    "Too many requests. Try again later.",
				"error_code": "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
