package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/domain/auditlog"
	"github.com/makkenzo/username-check-api/internal/domain/checktoken"
	"github.com/makkenzo/username-check-api/internal/domain/usage"
	"github.com/makkenzo/username-check-api/internal/handler/dto"
)

// AccountService backs the read-only endpoints an API key holder can call
// about their own account.
type AccountService struct {
	keys   apikey.Repository
	tokens checktoken.Repository
	usage  usage.Repository
	audit  auditlog.Repository
	quota  *QuotaPolicy
	now    func() time.Time
	logger *zap.Logger
}

func NewAccountService(
	keys apikey.Repository,
	tokens checktoken.Repository,
	usageRepo usage.Repository,
	audit auditlog.Repository,
	quota *QuotaPolicy,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		keys:   keys,
		tokens: tokens,
		usage:  usageRepo,
		audit:  audit,
		quota:  quota,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Named("AccountService"),
	}
}

func (s *AccountService) SavedUsernames(ctx context.Context, key *apikey.APIKey) (*dto.SavedUsernamesResponse, error) {
	saved, err := s.usage.ListSaved(ctx, key.UserID)
	if err != nil {
		s.logger.Error("Failed to list saved usernames", zap.String("user_id", key.UserID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch saved usernames: %w", err)
	}

	resp := &dto.SavedUsernamesResponse{
		Total:          len(saved),
		SavedUsernames: make([]dto.SavedUsernameResponse, len(saved)),
	}
	for i, sv := range saved {
		resp.SavedUsernames[i] = dto.SavedUsernameResponse{
			Username:  sv.Username,
			Notes:     sv.Notes,
			SavedAt:   sv.SavedAt,
			IsClaimed: sv.IsClaimed,
		}
	}
	return resp, nil
}

func (s *AccountService) Stats(ctx context.Context, key *apikey.APIKey) (*dto.StatsResponse, error) {
	tokens, err := s.tokens.ListByUser(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	counts, err := s.usage.CountHistory(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to count check history: %w", err)
	}
	saved, err := s.usage.ListSaved(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved usernames: %w", err)
	}

	resp := &dto.StatsResponse{
		Checks: dto.CheckCounts{
			Total:          counts.Total,
			AvailableFound: counts.Available,
			TakenFound:     counts.Total - counts.Available,
		},
		SavedUsernames: len(saved),
	}
	for _, t := range tokens {
		resp.Tokens.Total++
		if t.IsActive {
			resp.Tokens.Active++
		}
	}
	resp.Tokens.Inactive = resp.Tokens.Total - resp.Tokens.Active

	last, err := s.audit.LastForUser(ctx, key.UserID)
	switch {
	case err == nil:
		resp.LastAPIRequest = &last.CreatedAt
	case !errors.Is(err, auditlog.ErrNotFound):
		return nil, fmt.Errorf("failed to read last api request: %w", err)
	}

	return resp, nil
}

// User reports plan and quota for the calling key. A counter that has not
// been reset yet today is shown as zero.
func (s *AccountService) User(ctx context.Context, key *apikey.APIKey) (*dto.UserResponse, error) {
	plan, limit, err := s.quota.Resolve(ctx, key.UserID)
	if err != nil {
		return nil, err
	}

	keys, err := s.keys.ListByUser(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	stats, err := s.usage.GetStats(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage stats: %w", err)
	}

	requestsToday := key.RequestsToday
	if key.LastResetAt.Before(apikey.DayStart(s.now())) {
		requestsToday = 0
	}

	resp := &dto.UserResponse{
		UserID:    key.UserID.String(),
		IsPremium: plan.IsPremium(),
		APIStats: dto.APIStats{
			TotalKeys:         len(keys),
			DailyLimit:        limit,
			RequestsToday:     requestsToday,
			RequestsRemaining: max(0, limit-requestsToday),
		},
		UsageStats: dto.UsageStats{
			TotalChecks:    stats.TotalChecks,
			AvailableFound: stats.AvailableFound,
			LastActive:     stats.LastActive,
		},
	}
	if plan.IsPremium() {
		p := string(plan)
		resp.PremiumPlan = &p
	}
	for _, k := range keys {
		if k.IsActive() {
			resp.APIStats.ActiveKeys++
		}
	}
	return resp, nil
}
