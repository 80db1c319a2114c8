package ban

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotBanned = errors.New("user is not banned")

type Repository interface {
	// FindActive returns the ban in force for the user at now, preferring a
	// permanent ban, then the one expiring last. ErrNotBanned when none applies.
	FindActive(ctx context.Context, userID uuid.UUID, now time.Time) (*Ban, error)
}
