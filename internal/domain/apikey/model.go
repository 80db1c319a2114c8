package apikey

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

type APIKey struct {
	ID                  uuid.UUID  `db:"id"`
	UserID              uuid.UUID  `db:"user_id"`
	KeyHash             string     `db:"key_hash"`
	Prefix              string     `db:"prefix"`
	Label               string     `db:"label"`
	Status              Status     `db:"status"`
	RateLimitSeconds    int        `db:"rate_limit_seconds"`
	RequestsToday       int        `db:"requests_today"`
	LastRequestAt       *time.Time `db:"last_request_at"`
	LastUsedAt          *time.Time `db:"last_used_at"`
	LastResetAt         time.Time  `db:"last_reset_at"`
	IsProcessing        bool       `db:"is_processing"`
	ProcessingStartedAt *time.Time `db:"processing_started_at"`
	CreatedAt           time.Time  `db:"created_at"`
}

func (k *APIKey) IsActive() bool {
	return k.Status == StatusActive
}

// CooldownRemaining reports how long the caller has to wait before the key
// accepts another request. Zero means the window has passed.
func (k *APIKey) CooldownRemaining(now time.Time) time.Duration {
	if k.LastRequestAt == nil || k.RateLimitSeconds <= 0 {
		return 0
	}
	window := time.Duration(k.RateLimitSeconds) * time.Second
	elapsed := now.Sub(*k.LastRequestAt)
	if elapsed >= window {
		return 0
	}
	return window - elapsed
}

// DayStart returns midnight UTC of the day containing t. Daily counters whose
// last reset is before this instant are stale.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const (
	APIKeyPrefixLength = 8
	APIKeySecretLength = 32
	APIKeyFormat       = "uc_%s_%s"
	APIKeyScheme       = "uc"
)
