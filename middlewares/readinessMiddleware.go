package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/gate"
)

const (
	HealthzPath = "/healthz"
	ReadyzPath  = "/readyz"
)

// ReadinessMiddleware answers 503 until every required gate is connected.
// /healthz is always 204 so the platform keeps the instance while
// dependencies come up; /readyz is let through to report the gates.
func ReadinessMiddleware(registry *gate.Registry, required ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case HealthzPath:
			c.AbortWithStatus(http.StatusNoContent)
			return
		case ReadyzPath:
			c.Next()
			return
		}
		if !registry.Ready(required...) {
			c.Header("Retry-After", "5")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service not ready"})
			return
		}
		c.Next()
	}
}

// ReadyzHandler reports every gate; the status is 200 only when the required
// gates are connected.
func ReadyzHandler(registry *gate.Registry, required ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		ready := registry.Ready(required...)
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready": ready,
			"gates": registry.Snapshots(),
		})
	}
}
