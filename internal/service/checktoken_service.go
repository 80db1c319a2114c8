package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/checktoken"
	"github.com/makkenzo/username-check-api/internal/handler/dto"
	"github.com/makkenzo/username-check-api/internal/ierr"
)

type CheckTokenService struct {
	repo   checktoken.Repository
	logger *zap.Logger
}

func NewCheckTokenService(repo checktoken.Repository, logger *zap.Logger) *CheckTokenService {
	return &CheckTokenService{
		repo:   repo,
		logger: logger.Named("CheckTokenService"),
	}
}

func (s *CheckTokenService) Create(ctx context.Context, userID uuid.UUID, req *dto.CreateCheckTokenRequest) (*dto.CheckTokenResponse, error) {
	token := &checktoken.Token{
		UserID:   userID,
		Name:     req.Name,
		Value:    req.Value,
		IsActive: true,
	}

	id, err := s.repo.Create(ctx, token)
	if err != nil {
		s.logger.Warn("Failed to create check token", zap.String("user_id", userID.String()), zap.String("name", req.Name), zap.Error(err))
		return nil, fmt.Errorf("repository error creating check token: %w", err)
	}

	created, err := s.repo.FindByName(ctx, userID, req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to reload check token %s: %w", id, err)
	}

	s.logger.Info("Check token created", zap.String("id", id.String()), zap.String("name", req.Name))
	return dto.NewCheckTokenResponse(created), nil
}

func (s *CheckTokenService) List(ctx context.Context, userID uuid.UUID) ([]*dto.CheckTokenResponse, error) {
	tokens, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("repository error listing check tokens: %w", err)
	}
	out := make([]*dto.CheckTokenResponse, len(tokens))
	for i, t := range tokens {
		out[i] = dto.NewCheckTokenResponse(t)
	}
	return out, nil
}

func (s *CheckTokenService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, checktoken.ErrNotFound) {
			return fmt.Errorf("check token %s: %w", id, ierr.ErrNotFound)
		}
		return fmt.Errorf("repository error deleting check token: %w", err)
	}
	s.logger.Info("Check token deleted", zap.String("id", id.String()))
	return nil
}
