package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func router(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, remote string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remote
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitPerClient(t *testing.T) {
	r := router(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	tests := []struct {
		remote string
		want   int
	}{
		{"10.0.0.1:1000", http.StatusOK},
		{"10.0.0.1:1000", http.StatusOK},
		{"10.0.0.1:1000", http.StatusTooManyRequests},
		{"10.0.0.2:1000", http.StatusOK},
	}
	for _, tt := range tests {
		w := get(r, tt.remote)
		assert.Equal(t, tt.want, w.Code, tt.remote)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	r := router(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1").Code)
	w := get(r, "10.0.0.2:1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	r := router(CORS(DefaultCORSConfig("http://allowed.test")))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://allowed.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://allowed.test", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://other.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
