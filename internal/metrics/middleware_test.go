package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	router.GET("/api/v1/schedules/:schedule_id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	counter := HTTPRequests.WithLabelValues("GET", "/api/v1/schedules/:schedule_id", "404")
	before := testutil.ToFloat64(counter)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/schedules/abc", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
}
