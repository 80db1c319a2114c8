package auditlog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("audit log entry not found")

type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	LastForUser(ctx context.Context, userID uuid.UUID) (*Entry, error)
}
