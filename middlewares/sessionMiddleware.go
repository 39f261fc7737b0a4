package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
)

const userKey = "rentiq.user"

// SessionMiddleware resolves the "token" header to its user. Requests without
// the header pass through anonymously; an unknown or expired token is 401.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		user, err := models.ResolveSession(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			config.LogError(config.GetLogger(), "SessionMiddleware", "ResolveSession", "resolve token", nil, err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = models.ContextWithUser(ctx, user)
		c.Request = c.Request.WithContext(ctx)
		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser is the user authenticated by SessionMiddleware or AuthMiddleware.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
