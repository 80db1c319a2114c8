package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/handler/dto"
	"github.com/makkenzo/username-check-api/internal/ierr"
)

var jsonFieldNames sync.Once

// useJSONFieldNames makes validation errors report the request's JSON keys
// instead of Go struct field names.
func useJSONFieldNames() {
	jsonFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// ErrorHandlerMiddleware renders the last error attached with c.Error as
// {code, message, details}.
func ErrorHandlerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("ErrorHandler")
	useJSONFieldNames()

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			log.Debug("Request failed validation", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.APIErrorResponse{
				Code:    dto.CodeValidation,
				Message: "Input validation failed.",
				Details: fieldErrors(ve),
			})
			return
		}

		status := ierr.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		} else {
			log.Info("Request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
		}

		c.AbortWithStatusJSON(status, dto.NewAPIErrorResponse(status, err))
	}
}

func fieldErrors(ve validator.ValidationErrors) []dto.FieldError {
	details := make([]dto.FieldError, 0, len(ve))
	for _, fe := range ve {
		details = append(details, dto.FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return details
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", fe.Field())
	default:
		return fmt.Sprintf("%s failed the '%s' check", fe.Field(), fe.Tag())
	}
}
