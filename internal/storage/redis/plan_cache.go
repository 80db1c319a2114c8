package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/subscription"
)

// CachedPlanRepository keeps resolved plans in Redis for a short TTL. Cache
// failures fall through to the wrapped repository.
type CachedPlanRepository struct {
	next   subscription.Repository
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedPlanRepository(next subscription.Repository, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedPlanRepository {
	return &CachedPlanRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.Named("CachedPlanRepository"),
	}
}

var _ subscription.Repository = (*CachedPlanRepository)(nil)

func (r *CachedPlanRepository) PlanFor(ctx context.Context, userID uuid.UUID) (subscription.Plan, error) {
	key := planKey(userID)

	cached, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return subscription.Plan(cached), nil
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("Plan cache read failed", zap.String("user_id", userID.String()), zap.Error(err))
	}

	plan, err := r.next.PlanFor(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := r.client.Set(ctx, key, string(plan), r.ttl).Err(); err != nil {
		r.logger.Warn("Plan cache write failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	return plan, nil
}

// Invalidate drops the cached plan for a user.
func (r *CachedPlanRepository) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.Del(ctx, planKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate plan cache: %w", err)
	}
	return nil
}

func planKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:plan:%s", keyNamespace, userID)
}
