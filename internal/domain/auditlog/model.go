package auditlog

import (
	"time"

	"github.com/google/uuid"

	"github.com/makkenzo/username-check-api/internal/domain/usage"
)

type Entry struct {
	ID               uuid.UUID           `db:"id"`
	APIKeyID         uuid.UUID           `db:"api_key_id"`
	UserID           uuid.UUID           `db:"user_id"`
	Endpoint         string              `db:"endpoint"`
	TokenName        string              `db:"token_name"`
	UsernamesChecked []string            `db:"usernames_checked"`
	Results          []usage.CheckResult `db:"results"`
	StatusCode       int                 `db:"status_code"`
	IPAddress        string              `db:"ip_address"`
	UserAgent        string              `db:"user_agent"`
	ErrorMessage     string              `db:"error_message"`
	ProcessingTimeMs int64               `db:"processing_time"`
	CreatedAt        time.Time           `db:"created_at"`
}
