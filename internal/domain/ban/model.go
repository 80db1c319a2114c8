package ban

import (
	"time"

	"github.com/google/uuid"
)

type Ban struct {
	ID        uuid.UUID  `db:"id"`
	UserID    uuid.UUID  `db:"user_id"`
	Reason    string     `db:"reason"`
	ExpiresAt *time.Time `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
}

func (b *Ban) IsPermanent() bool {
	return b.ExpiresAt == nil
}

// ActiveAt reports whether the ban still applies at t.
func (b *Ban) ActiveAt(t time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(t)
}
