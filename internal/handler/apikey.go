package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/handler/dto"
	"github.com/makkenzo/username-check-api/internal/handler/middleware"
	"github.com/makkenzo/username-check-api/internal/ierr"
	"github.com/makkenzo/username-check-api/internal/service"
)

type APIKeyHandler struct {
	service *service.APIKeyService
	logger  *zap.Logger
}

func NewAPIKeyHandler(service *service.APIKeyService, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service: service,
		logger:  logger.Named("APIKeyHandler"),
	}
}

func (h *APIKeyHandler) Create(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind create api key request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	respDTO, err := h.service.CreateAPIKey(c.Request.Context(), userID, req.Label)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("API key created via handler", zap.String("id", respDTO.ID.String()))
	c.JSON(http.StatusCreated, respDTO)
}

func (h *APIKeyHandler) List(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	keys, err := h.service.ListAPIKeys(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *APIKeyHandler) Update(c *gin.Context) {
	userID, id, ok := userAndID(c, h.logger)
	if !ok {
		return
	}

	var req dto.UpdateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	resp, err := h.service.UpdateLabel(c.Request.Context(), id, userID, req.Label)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *APIKeyHandler) Revoke(c *gin.Context) {
	userID, id, ok := userAndID(c, h.logger)
	if !ok {
		return
	}

	if err := h.service.RevokeAPIKey(c.Request.Context(), id, userID); err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("API key revoked via handler", zap.String("id", id.String()))
	c.Status(http.StatusNoContent)
}

// userAndID reads the session user and the :id path parameter.
func userAndID(c *gin.Context, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		_ = c.Error(err)
		return uuid.Nil, uuid.Nil, false
	}

	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		logger.Warn("Invalid UUID in path", zap.String("id_param", idStr), zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: invalid id format", ierr.ErrValidation))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

// bindError keeps validator details reachable for ErrorHandlerMiddleware.
func bindError(err error) error {
	return fmt.Errorf("%w: %w", ierr.ErrValidation, err)
}
