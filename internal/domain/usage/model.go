package usage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CheckResult is the outcome of one username within a batch.
type CheckResult struct {
	Username  string          `json:"username"`
	Available bool            `json:"available"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type HistoryEntry struct {
	ID              uuid.UUID       `db:"id"`
	UserID          uuid.UUID       `db:"user_id"`
	UsernameChecked string          `db:"username_checked"`
	IsAvailable     bool            `db:"is_available"`
	APIResponse     json.RawMessage `db:"api_response"`
	TokenUsed       uuid.UUID       `db:"token_used"`
	ResponseTimeMs  int64           `db:"response_time"`
	CheckedAt       time.Time       `db:"checked_at"`
}

type Stats struct {
	UserID         uuid.UUID  `db:"user_id"`
	TotalChecks    int64      `db:"total_checks"`
	AvailableFound int64      `db:"available_found"`
	LastActive     *time.Time `db:"last_active"`
}

type SavedUsername struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Username  string    `db:"username"`
	Notes     *string   `db:"notes"`
	SavedAt   time.Time `db:"saved_at"`
	IsClaimed bool      `db:"is_claimed"`
}

// HistoryCounts summarises a user's check history.
type HistoryCounts struct {
	Total     int64
	Available int64
}
