package ierr

import (
	"errors"
	"net/http"
	"time"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrRateLimited    = errors.New("rate limited")
	ErrInternalServer = errors.New("internal server error")

	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenInvalidClaims = errors.New("token contains invalid claims")
)

// GatewayError is a terminal outcome of a check request. Kind is one of the
// sentinels above; the remaining fields are rendered next to the message.
type GatewayError struct {
	Kind        error
	Message     string
	RetryAfter  *int
	Limit       *int
	Used        *int
	BannedUntil *time.Time
	Reason      string
}

func (e *GatewayError) Error() string {
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Kind
}

func NewGatewayError(kind error, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message}
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenInvalidClaims):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Kind names the error class, as used in metrics labels.
func Kind(err error) string {
	switch HTTPStatus(err) {
	case http.StatusOK:
		return "ok"
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal"
	}
}
