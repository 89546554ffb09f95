package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// APIKeyHeader carries the import API key. A bearer token in Authorization
// is accepted as well.
const APIKeyHeader = "X-Import-API-Key"

// RequireAPIKey guards the import routes. An empty key rejects every request
// with 500 rather than serving them open.
func RequireAPIKey(apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		return func(c *gin.Context) {
			log.Error().Str("path", c.FullPath()).Msg("Import API key middleware installed without a key")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "import API key not configured",
			})
		}
	}
	want := []byte(apiKey)

	return func(c *gin.Context) {
		got := presentedKey(c.Request)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			log.Warn().
				Str("client_ip", c.ClientIP()).
				Str("path", c.FullPath()).
				Bool("key_present", got != "").
				Msg("Rejected import API request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid import API key",
			})
			return
		}
		c.Next()
	}
}

func presentedKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > len("Bearer ") && strings.EqualFold(auth[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}
