package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/handler/dto"
	"github.com/makkenzo/username-check-api/internal/handler/middleware"
	"github.com/makkenzo/username-check-api/internal/ierr"
	"github.com/makkenzo/username-check-api/internal/service"
)

const tokenNameHeader = "x-token-name"

// CheckHandler serves the public username check endpoint. It answers with its
// own {"success": ...} envelope instead of going through ErrorHandlerMiddleware.
type CheckHandler struct {
	gateway *service.GatewayService
	logger  *zap.Logger
}

func NewCheckHandler(gateway *service.GatewayService, logger *zap.Logger) *CheckHandler {
	return &CheckHandler{
		gateway: gateway,
		logger:  logger.Named("CheckHandler"),
	}
}

func (h *CheckHandler) Check(c *gin.Context) {
	req := service.CheckRequest{
		APIKey:    c.GetHeader(middleware.APIKeyHeader),
		TokenName: c.GetHeader(tokenNameHeader),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	if err := h.gateway.ValidateHeaders(req); err != nil {
		h.fail(c, err)
		return
	}

	var body dto.CheckUsernamesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Debug("Failed to bind check request body", zap.Error(err))
		h.fail(c, h.gateway.ValidateUsernames(nil))
		return
	}
	req.Usernames = body.Usernames

	result, err := h.gateway.Check(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CheckUsernamesResponse{
		Success:           true,
		Results:           result.Results,
		RequestsRemaining: result.RequestsRemaining(),
		DailyLimit:        result.DailyLimit,
	})
}

func (h *CheckHandler) fail(c *gin.Context, err error) {
	status := ierr.HTTPStatus(err)
	var ge *ierr.GatewayError
	if !errors.As(err, &ge) {
		h.logger.Error("Check failed without a gateway error", zap.Error(err))
	}
	c.AbortWithStatusJSON(status, dto.NewCheckErrorResponse(err))
}
