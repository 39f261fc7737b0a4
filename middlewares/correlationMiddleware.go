package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rentiq/rentiq_backend/utils"
)

const CorrelationHeader = "x-correlation-id"

// CorrelationMiddleware attaches the caller's correlation id, or a new one,
// to the request context and echoes it back.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(CorrelationHeader)
		if cid == "" || len(cid) > 64 {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header(CorrelationHeader, cid)
		c.Next()
	}
}
