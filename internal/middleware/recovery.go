package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-booking/pkg/logger"
)

// Recovery turns a panicking handler into a 500. The panic value and stack
// go to the log only.
func Recovery(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(ContextRequestID)
			l.Error(fmt.Errorf("panic: %v", rec), "handler panicked",
				"route", c.FullPath(),
				"method", c.Request.Method,
				"request_id", rid,
				"stack", string(debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
				Code:    http.StatusInternalServerError,
				Message: "Internal server error",
				TraceID: rid,
			})
		}()
		c.Next()
	}
}
