package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/handler/dto"
	"github.com/makkenzo/username-check-api/internal/ierr"
	"github.com/makkenzo/username-check-api/internal/service"
)

type authFunc func(ctx context.Context, fullKey string) (*apikey.APIKey, error)

func (f authFunc) Authenticate(ctx context.Context, fullKey string) (*apikey.APIKey, error) {
	return f(ctx, fullKey)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	known := &apikey.APIKey{ID: uuid.New(), Prefix: "abcdefgh", Status: apikey.StatusActive}

	auth := authFunc(func(ctx context.Context, fullKey string) (*apikey.APIKey, error) {
		switch fullKey {
		case "good":
			return known, nil
		case "broken":
			return nil, errors.New("db down")
		default:
			return nil, fmt.Errorf("%w: nope", ierr.ErrUnauthorized)
		}
	})

	r := gin.New()
	r.GET("/", APIKeyAuthMiddleware(auth, zap.NewNop()), func(c *gin.Context) {
		c.String(http.StatusOK, GetAPIKey(c).ID.String())
	})

	tests := []struct {
		name   string
		key    string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, `{"error":"API key is required"}`},
		{"rejected", "bad", http.StatusUnauthorized, `{"error":"Invalid or inactive API key"}`},
		{"lookup failure", "broken", http.StatusInternalServerError, `{"error":"Internal server error"}`},
		{"accepted", "good", http.StatusOK, known.ID.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.key != "" {
				req.Header.Set("X-Api-Key", tt.key)
			}
			rec := serve(r, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestContextGettersWithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetAPIKey(c))
	assert.Nil(t, GetUserClaims(c))
	_, err := GetUserID(c)
	assert.ErrorIs(t, err, ierr.ErrUnauthorized)
}

type sessionFunc func(ctx context.Context, tokenString string) (*service.UserClaims, error)

func (f sessionFunc) ValidateToken(ctx context.Context, tokenString string) (*service.UserClaims, error) {
	return f(ctx, tokenString)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()

	sessions := sessionFunc(func(ctx context.Context, tokenString string) (*service.UserClaims, error) {
		switch tokenString {
		case "good":
			return &service.UserClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()}}, nil
		case "no-subject":
			return &service.UserClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "admin"}}, nil
		default:
			return nil, ierr.ErrInvalidToken
		}
	})

	r := gin.New()
	r.Use(ErrorHandlerMiddleware(zap.NewNop()))
	r.GET("/", AuthMiddleware(sessions, zap.NewNop()), func(c *gin.Context) {
		id, err := GetUserID(c)
		require.NoError(t, err)
		require.NotNil(t, GetUserClaims(c))
		c.String(http.StatusOK, id.String())
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic dXNlcjpwdw==", http.StatusUnauthorized},
		{"empty bearer", "Bearer  ", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"subject not a user", "Bearer no-subject", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(r, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, userID.String(), rec.Body.String())
			}
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: bad id", ierr.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthenticated", ierr.ErrInvalidToken, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"not found", fmt.Errorf("key: %w", ierr.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", ierr.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"rate limited", ierr.NewGatewayError(ierr.ErrRateLimited, "slow down"), http.StatusTooManyRequests, "RATE_LIMITED"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(ErrorHandlerMiddleware(zap.NewNop()))
			r.GET("/", func(c *gin.Context) { _ = c.Error(tt.err) })

			rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, tt.status, rec.Code)

			var resp dto.APIErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotContains(t, resp.Message, "boom")
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.Use(ErrorHandlerMiddleware(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	r.GET("/partial", func(c *gin.Context) {
		c.String(http.StatusAccepted, "started")
		panic("late boom")
	})

	t.Run("renders internal error", func(t *testing.T) {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body dto.APIErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, dto.CodeInternal, body.Code)
		assert.NotContains(t, body.Message, "boom")
	})

	t.Run("keeps a response already written", func(t *testing.T) {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/partial", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "started", rec.Body.String())
	})
}
