package dto

import "net/http"

const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
)

// APIErrorResponse is the error envelope of the dashboard and account endpoints.
type APIErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewAPIErrorResponse picks the code and message for a status. Validation and
// conflict errors carry their own text; everything else gets a fixed message.
func NewAPIErrorResponse(status int, err error) APIErrorResponse {
	switch status {
	case http.StatusBadRequest:
		return APIErrorResponse{Code: CodeValidation, Message: err.Error()}
	case http.StatusUnauthorized:
		return APIErrorResponse{Code: CodeUnauthenticated, Message: "Authentication required or failed."}
	case http.StatusForbidden:
		return APIErrorResponse{Code: CodeForbidden, Message: "Access denied."}
	case http.StatusNotFound:
		return APIErrorResponse{Code: CodeNotFound, Message: "The requested resource was not found."}
	case http.StatusConflict:
		return APIErrorResponse{Code: CodeConflict, Message: err.Error()}
	case http.StatusTooManyRequests:
		return APIErrorResponse{Code: CodeRateLimited, Message: "Too many requests."}
	default:
		return APIErrorResponse{Code: CodeInternal, Message: "An unexpected error occurred."}
	}
}
