package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/config"
	"github.com/makkenzo/username-check-api/internal/ierr"
)

// UserClaims are the claims of a dashboard session token. Subject holds the
// user id.
type UserClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *UserClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ierr.ErrTokenInvalidClaims)
	}
	return id, nil
}

// AuthService verifies HS256 session tokens issued by the account system.
type AuthService struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

func NewAuthService(cfg *config.JWTConfig, logger *zap.Logger) (*AuthService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &AuthService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		logger: logger.Named("AuthService"),
	}, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, rawToken string) (*UserClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims UserClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		s.logger.Warn("Failed to verify session token", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ierr.ErrInvalidToken, err)
	}

	if _, err := claims.UserID(); err != nil {
		s.logger.Warn("Session token subject is not a uuid", zap.String("subject", claims.Subject))
		return nil, err
	}

	s.logger.Debug("Session token validated", zap.String("subject", claims.Subject))
	return &claims, nil
}

// IssueToken signs a session token for userID. Used by operator tooling and tests.
func (s *AuthService) IssueToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
