package discord

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from Discord.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	RetryAfter float64
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("discord: %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("discord: %d: %s", e.StatusCode, e.Message)
}

var (
	ErrMalformedResponse = errors.New("discord: malformed response")
	ErrRateLimited       = errors.New("discord: rate limited")
)

// Is lets callers match upstream throttling with errors.Is.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

type errorBody struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"`
}

func parseError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || !json.Valid(body) {
		apiErr.Message = http.StatusText(statusCode)
		return apiErr
	}

	apiErr.Code = eb.Code
	apiErr.Message = eb.Message
	apiErr.RetryAfter = eb.RetryAfter
	apiErr.Body = json.RawMessage(body)
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}
