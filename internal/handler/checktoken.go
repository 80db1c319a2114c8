package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/handler/dto"
	"github.com/makkenzo/username-check-api/internal/handler/middleware"
	"github.com/makkenzo/username-check-api/internal/service"
)

type CheckTokenHandler struct {
	service *service.CheckTokenService
	logger  *zap.Logger
}

func NewCheckTokenHandler(service *service.CheckTokenService, logger *zap.Logger) *CheckTokenHandler {
	return &CheckTokenHandler{
		service: service,
		logger:  logger.Named("CheckTokenHandler"),
	}
}

func (h *CheckTokenHandler) Create(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.CreateCheckTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind create check token request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	resp, err := h.service.Create(c.Request.Context(), userID, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *CheckTokenHandler) List(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	tokens, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *CheckTokenHandler) Delete(c *gin.Context) {
	userID, id, ok := userAndID(c, h.logger)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, userID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
