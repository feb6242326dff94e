package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"sap-sales-sync/internal/config"

	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware guards the sync trigger routes. With no key configured
// every request passes.
func APIKeyMiddleware(cfg config.ExternalConfig) gin.HandlerFunc {
	expected := []byte(cfg.APIKey)

	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}

		// X-API-Key first, then Authorization: ApiKey <key>
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "ApiKey ") {
				apiKey = strings.TrimPrefix(h, "ApiKey ")
			}
		}

		if apiKey == "" {
			reject(c, "MISSING_API_KEY", "API key is required. Provide X-API-Key header or Authorization: ApiKey <key>")
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), expected) != 1 {
			reject(c, "INVALID_API_KEY", "Invalid API key provided")
			return
		}

		c.Next()
	}
}

func reject(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
