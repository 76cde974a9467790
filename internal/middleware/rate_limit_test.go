package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(perMinute int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SellerMiddleware(), SellerRateLimit(perMinute))
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func pingAs(router *gin.Engine, sellerID string) int {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Seller-ID", sellerID)
	router.ServeHTTP(w, req)
	return w.Code
}

func TestSellerRateLimit(t *testing.T) {
	// 6 per minute gives a burst of one request
	router := rateLimitedRouter(6)

	assert.Equal(t, http.StatusNoContent, pingAs(router, "seller-1"))
	assert.Equal(t, http.StatusTooManyRequests, pingAs(router, "seller-1"))
	assert.Equal(t, http.StatusNoContent, pingAs(router, "seller-2"), "each seller has its own budget")
}

func TestSellerRateLimit_Disabled(t *testing.T) {
	router := rateLimitedRouter(0)

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusNoContent, pingAs(router, "seller-1"))
	}
}
