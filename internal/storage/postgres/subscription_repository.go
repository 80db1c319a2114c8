package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/subscription"
)

type SubscriptionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSubscriptionRepository(db *pgxpool.Pool, logger *zap.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:     db,
		logger: logger.Named("SubscriptionRepository"),
	}
}

var _ subscription.Repository = (*SubscriptionRepository)(nil)

// PlanFor returns PlanFree when the user has no active subscription.
func (r *SubscriptionRepository) PlanFor(ctx context.Context, userID uuid.UUID) (subscription.Plan, error) {
	query := `
		SELECT plan FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY (plan = 'premium') DESC, created_at DESC
		LIMIT 1
	`
	var plan string
	err := r.db.QueryRow(ctx, query, userID).Scan(&plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscription.PlanFree, nil
		}
		r.logger.Error("Failed to look up subscription", zap.String("user_id", userID.String()), zap.Error(err))
		return "", fmt.Errorf("db error finding subscription: %w", err)
	}
	if subscription.Plan(plan) == subscription.PlanPremium {
		return subscription.PlanPremium, nil
	}
	return subscription.PlanFree, nil
}
