package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/handler/dto"
	"github.com/makkenzo/username-check-api/internal/ierr"
)

// RecoveryMiddleware answers 500 for a panicking handler. The panic skips
// ErrorHandlerMiddleware, so the response is written here.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("Recovery")
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("Panic recovered",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		if c.Writer.Written() {
			c.Abort()
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			dto.NewAPIErrorResponse(http.StatusInternalServerError, ierr.ErrInternalServer))
	})
}
