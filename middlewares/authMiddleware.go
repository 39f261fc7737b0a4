package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/models"
)

// AuthMiddleware accepts "Authorization: Bearer <jwt>" service tokens. A
// request that already has a session user is left alone.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" || CurrentUser(c) != nil {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if len(auth) <= len(bearer) || !strings.EqualFold(auth[:len(bearer)], bearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := models.ResolveServiceToken(c.Request.Context(), strings.TrimSpace(auth[len(bearer):]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Request = c.Request.WithContext(models.ContextWithUser(c.Request.Context(), user))
		c.Set(userKey, user)
		c.Next()
	}
}
