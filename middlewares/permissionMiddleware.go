package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
)

// RequireUser rejects anonymous callers and applies the approval gate.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := models.CheckAccess(user); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":           err.Error(),
				"approval_status": user.ApprovalStatus,
			})
			return
		}
		c.Next()
	}
}

// RequirePermission allows the request when the user's role grants action on
// module. Admins and owners always pass. It expects RequireUser before it.
func RequirePermission(module string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		err := models.Authorize(c.Request.Context(), user.Role, user.RoleId, module, action)
		if err == nil {
			c.Next()
			return
		}
		if errors.Is(err, models.ErrForbidden) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no " + action + " permission on " + module})
			return
		}
		config.LogError(config.GetLogger(), "PermissionMiddleware", "RequirePermission", module+":"+action, user.ID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "permission check failed"})
	}
}

// RequireAdmin allows only admins and owners.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !user.Role.Privileged() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": models.ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

// RequireSession only requires a signed-in caller, so pending users can still
// read their own profile and sign out.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
