package dto

import (
	"errors"

	"github.com/makkenzo/username-check-api/internal/domain/usage"
	"github.com/makkenzo/username-check-api/internal/ierr"
)

type CheckUsernamesRequest struct {
	Usernames []string `json:"usernames"`
}

type CheckUsernamesResponse struct {
	Success           bool                `json:"success"`
	Results           []usage.CheckResult `json:"results"`
	RequestsRemaining int                 `json:"requests_remaining"`
	DailyLimit        int                 `json:"daily_limit"`
}

// NewCheckErrorResponse renders a failed check as
// {"success": false, "error": ..., plus backoff or ban fields}.
func NewCheckErrorResponse(err error) map[string]any {
	body := map[string]any{"success": false}

	var ge *ierr.GatewayError
	if !errors.As(err, &ge) {
		body["error"] = "Internal server error"
		return body
	}

	body["error"] = ge.Message
	if ge.RetryAfter != nil {
		body["retry_after"] = *ge.RetryAfter
	}
	if ge.Limit != nil {
		body["limit"] = *ge.Limit
	}
	if ge.Used != nil {
		body["used"] = *ge.Used
	}
	if errors.Is(ge, ierr.ErrForbidden) {
		body["banned_until"] = ge.BannedUntil
		body["reason"] = ge.Reason
	}
	return body
}
