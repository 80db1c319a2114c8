package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/config"
	"github.com/makkenzo/username-check-api/internal/domain/subscription"
)

// QuotaPolicy decides a user's plan and the daily request limit that
// goes with it.
type QuotaPolicy struct {
	plans        subscription.Repository
	freeLimit    int
	premiumLimit int
	premiumUsers map[uuid.UUID]struct{}
	logger       *zap.Logger
}

func NewQuotaPolicy(plans subscription.Repository, cfg config.GatewayConfig, logger *zap.Logger) *QuotaPolicy {
	log := logger.Named("QuotaPolicy")

	premium := make(map[uuid.UUID]struct{}, len(cfg.PremiumUserIDs))
	for _, raw := range cfg.PremiumUserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Warn("Ignoring malformed premium user id", zap.String("value", raw), zap.Error(err))
			continue
		}
		premium[id] = struct{}{}
	}

	return &QuotaPolicy{
		plans:        plans,
		freeLimit:    cfg.DailyLimitFree,
		premiumLimit: cfg.DailyLimitPremium,
		premiumUsers: premium,
		logger:       log,
	}
}

func (p *QuotaPolicy) Resolve(ctx context.Context, userID uuid.UUID) (subscription.Plan, int, error) {
	if _, ok := p.premiumUsers[userID]; ok {
		return subscription.PlanPremium, p.premiumLimit, nil
	}

	plan, err := p.plans.PlanFor(ctx, userID)
	if err != nil {
		return "", 0, fmt.Errorf("failed to resolve plan for user %s: %w", userID, err)
	}
	if plan.IsPremium() {
		return subscription.PlanPremium, p.premiumLimit, nil
	}
	return subscription.PlanFree, p.freeLimit, nil
}
