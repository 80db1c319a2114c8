package checktoken

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("check token not found")

type Repository interface {
	// FindByName returns the token regardless of is_active; callers decide.
	FindByName(ctx context.Context, userID uuid.UUID, name string) (*Token, error)
	RecordUsage(ctx context.Context, id uuid.UUID, at time.Time) error
	Create(ctx context.Context, token *Token) (uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}
