// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// Recovery turns a panic in a handler into a 500 response.
// It runs outermost, so it renders the error itself instead of relying on ErrorHandler.
// The stack trace is logged and never sent to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", rec,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				appErr := apperror.NewInternal(fmt.Errorf("panic: %v", rec))
				_ = c.Error(appErr)
				c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
					"code":    appErr.Code,
					"message": appErr.Message,
					"details": map[string]any{"request_id": c.GetString("request_id")},
				})
			}
		}()
		c.Next()
	}
}
