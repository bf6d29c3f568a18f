package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/swiftbus/booking-backend/internal/config"
)

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := NewIPRateLimiter(config.RateLimitConfig{Enabled: true, Requests: 3, WindowSeconds: 60})
	router := gin.New()
	router.Use(RateLimit(limiter, testLogger()))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Real-IP", ip)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, call("41.0.0.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, call("41.0.0.1"))

	// Other clients have their own bucket
	assert.Equal(t, http.StatusOK, call("41.0.0.2"))
}

func TestIPRateLimiterCleanup(t *testing.T) {
	limiter := NewIPRateLimiter(config.RateLimitConfig{Requests: 10, WindowSeconds: 60})
	now := time.Now()

	limiter.get("41.0.0.1", now.Add(-time.Hour))
	limiter.get("41.0.0.2", now)

	assert.Equal(t, 1, limiter.Cleanup(now))
	assert.Len(t, limiter.visitors, 1)
}
