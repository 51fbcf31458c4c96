package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"market-gateway/pkg/license"
)

const subjectContextKey = "Subject"

// AuthMiddleware enforces machine-bound admin tokens.
func AuthMiddleware(tokens *license.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "MISSING_TOKEN",
				"error": "missing Authorization header",
			})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_AUTH_HEADER",
				"error": "invalid Authorization header",
			})
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_TOKEN",
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(subjectContextKey, claims.Subject)
		c.Next()
	}
}

// CurrentSubject returns the authenticated token subject.
func CurrentSubject(c *gin.Context) string {
	return c.GetString(subjectContextKey)
}
