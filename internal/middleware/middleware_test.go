package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/x", handlers...)
	return router
}

func get(router *gin.Engine, remote string, headers map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_PerIP(t *testing.T) {
	rl := NewIPRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	router := newRouter(rl.Middleware())

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234", nil))
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234", nil))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1234", nil))
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.2:1234", nil), "budget is per client")
}

func TestRateLimit_SweepDropsIdleClients(t *testing.T) {
	rl := NewIPRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.GetLimiter("a")
	now = now.Add(45 * time.Second)
	rl.GetLimiter("b")
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 1, rl.Len())
}

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		headers map[string]string
		want    int
	}{
		{name: "valid key header", key: "s3cret", headers: map[string]string{APIKeyHeader: "s3cret"}, want: http.StatusOK},
		{name: "valid bearer token", key: "s3cret", headers: map[string]string{"Authorization": "Bearer s3cret"}, want: http.StatusOK},
		{name: "lower-case bearer scheme", key: "s3cret", headers: map[string]string{"Authorization": "bearer s3cret"}, want: http.StatusOK},
		{name: "wrong key", key: "s3cret", headers: map[string]string{APIKeyHeader: "nope"}, want: http.StatusUnauthorized},
		{name: "basic auth is not a key", key: "s3cret", headers: map[string]string{"Authorization": "Basic s3cret"}, want: http.StatusUnauthorized},
		{name: "missing header", key: "s3cret", want: http.StatusUnauthorized},
		{name: "unconfigured fails closed", key: "", headers: map[string]string{APIKeyHeader: "anything"}, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(RequireAPIKey(tt.key))
			require.Equal(t, tt.want, get(router, "10.0.0.1:1", tt.headers))
		})
	}
}
