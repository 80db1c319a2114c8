package checktoken

import (
	"time"

	"github.com/google/uuid"
)

// Token is a user's upstream credential. Value holds the plaintext secret;
// storage implementations seal it at rest.
type Token struct {
	ID         uuid.UUID  `db:"id"`
	UserID     uuid.UUID  `db:"user_id"`
	Name       string     `db:"token_name"`
	Value      string     `db:"token_value"`
	IsActive   bool       `db:"is_active"`
	UsageCount int64      `db:"usage_count"`
	LastUsedAt *time.Time `db:"last_used_at"`
	CreatedAt  time.Time  `db:"created_at"`
}
