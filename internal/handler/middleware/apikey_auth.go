package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/ierr"
	"github.com/makkenzo/username-check-api/internal/service"
)

const (
	APIKeyHeader        = "x-api-key"
	apiKeyContextKey    = "apiKey"
	msgAPIKeyRequired   = "API key is required"
	msgAPIKeyInvalid    = "Invalid or inactive API key"
	msgAPIKeyLookupFail = "Internal server error"
)

// APIKeyAuthMiddleware admits requests carrying an active key and stores the
// resolved credential in the context.
func APIKeyAuthMiddleware(auth service.Authenticator, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("APIKeyAuthMiddleware")
	return func(c *gin.Context) {
		fullKey := c.GetHeader(APIKeyHeader)
		if fullKey == "" {
			log.Debug("API key header is missing", zap.String("header", APIKeyHeader))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgAPIKeyRequired})
			return
		}

		key, err := auth.Authenticate(c.Request.Context(), fullKey)
		if err != nil {
			if errors.Is(err, ierr.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgAPIKeyInvalid})
				return
			}
			log.Error("Failed to validate API key", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msgAPIKeyLookupFail})
			return
		}

		log.Debug("API key validated", zap.String("prefix", key.Prefix), zap.String("key_id", key.ID.String()))
		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

func GetAPIKey(c *gin.Context) *apikey.APIKey {
	value, exists := c.Get(apiKeyContextKey)
	if !exists {
		return nil
	}
	key, ok := value.(*apikey.APIKey)
	if !ok {
		return nil
	}
	return key
}
