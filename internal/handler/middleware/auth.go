package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/ierr"
	"github.com/makkenzo/username-check-api/internal/service"
)

const (
	authorizationHeader  = "Authorization"
	bearerPrefix         = "Bearer "
	userClaimsContextKey = "userClaims"
	userIDContextKey     = "userID"
)

// SessionValidator is satisfied by *service.AuthService.
type SessionValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*service.UserClaims, error)
}

var _ SessionValidator = (*service.AuthService)(nil)

// AuthMiddleware guards the dashboard routes. The session subject is
// resolved to a user id here, so handlers never see a half-valid session.
func AuthMiddleware(sessions SessionValidator, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("AuthMiddleware")
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c.GetHeader(authorizationHeader))
		if err != nil {
			log.Debug("Rejected session header", zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		claims, err := sessions.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(userClaimsContextKey, claims)
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: authorization header required", ierr.ErrUnauthorized)
	}
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: invalid authorization header format", ierr.ErrUnauthorized)
	}
	return strings.TrimSpace(token), nil
}

func GetUserClaims(c *gin.Context) *service.UserClaims {
	claims, _ := c.Value(userClaimsContextKey).(*service.UserClaims)
	return claims
}

func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userID, ok := c.Value(userIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: no session", ierr.ErrUnauthorized)
	}
	return userID, nil
}
