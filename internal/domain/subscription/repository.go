package subscription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	PlanFor(ctx context.Context, userID uuid.UUID) (Plan, error)
}
