package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/handler/middleware"
	"github.com/makkenzo/username-check-api/internal/ierr"
	"github.com/makkenzo/username-check-api/internal/service"
)

// AccountHandler exposes read-only account data to API key holders. Routes
// must sit behind APIKeyAuthMiddleware.
type AccountHandler struct {
	service *service.AccountService
	logger  *zap.Logger
}

func NewAccountHandler(service *service.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		service: service,
		logger:  logger.Named("AccountHandler"),
	}
}

func (h *AccountHandler) Saved(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	resp, err := h.service.SavedUsernames(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) Stats(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	resp, err := h.service.Stats(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) User(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	resp, err := h.service.User(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) key(c *gin.Context) (*apikey.APIKey, bool) {
	key := middleware.GetAPIKey(c)
	if key == nil {
		h.logger.Error("Account route reached without an authenticated key", zap.String("path", c.FullPath()))
		_ = c.Error(ierr.ErrUnauthorized)
		c.Abort()
		return nil, false
	}
	return key, true
}
