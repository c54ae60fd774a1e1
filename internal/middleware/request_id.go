package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDContextKey = "requestID"

// RequestID ensures every request carries an X-Request-Id, assigning one when
// the caller did not.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set("X-Request-Id", requestID)
		}
		c.Set(requestIDContextKey, requestID)
		c.Writer.Header().Set("X-Request-Id", requestID)
		c.Next()
	}
}

// RequestIDFromContext returns the request id assigned by RequestID.
func RequestIDFromContext(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}
