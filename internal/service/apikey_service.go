package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/handler/dto"
	"github.com/makkenzo/username-check-api/internal/ierr"
	"github.com/makkenzo/username-check-api/internal/util"
)

// Authentication failures. All of them wrap ierr.ErrUnauthorized and are
// reported to callers identically.
var (
	ErrKeyMalformed = fmt.Errorf("%w: malformed api key", ierr.ErrUnauthorized)
	ErrKeyUnknown   = fmt.Errorf("%w: unknown api key", ierr.ErrUnauthorized)
	ErrKeyMismatch  = fmt.Errorf("%w: api key hash mismatch", ierr.ErrUnauthorized)
	ErrKeyRevoked   = fmt.Errorf("%w: api key revoked", ierr.ErrUnauthorized)
)

type APIKeyService struct {
	repo             apikey.Repository
	defaultRateLimit int
	logger           *zap.Logger
}

func NewAPIKeyService(repo apikey.Repository, defaultRateLimit int, logger *zap.Logger) *APIKeyService {
	return &APIKeyService{
		repo:             repo,
		defaultRateLimit: defaultRateLimit,
		logger:           logger.Named("APIKeyService"),
	}
}

// Authenticate resolves a full key to an active credential.
func (s *APIKeyService) Authenticate(ctx context.Context, fullKey string) (*apikey.APIKey, error) {
	prefix, err := util.ParseAPIKey(fullKey)
	if err != nil {
		s.logger.Debug("Rejected malformed API key")
		return nil, ErrKeyMalformed
	}

	key, err := s.repo.FindByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, apikey.ErrAPIKeyNotFound) {
			s.logger.Warn("API key not found", zap.String("prefix", prefix))
			return nil, ErrKeyUnknown
		}
		s.logger.Error("Failed to query API key repository", zap.String("prefix", prefix), zap.Error(err))
		return nil, fmt.Errorf("%w: api key lookup failed: %v", ierr.ErrInternalServer, err)
	}

	if subtle.ConstantTimeCompare([]byte(util.HashAPIKey(fullKey)), []byte(key.KeyHash)) != 1 {
		s.logger.Warn("API key hash mismatch", zap.String("prefix", prefix), zap.String("key_id", key.ID.String()))
		return nil, ErrKeyMismatch
	}

	if !key.IsActive() {
		s.logger.Info("Revoked API key presented", zap.String("key_id", key.ID.String()))
		return nil, ErrKeyRevoked
	}

	return key, nil
}

func (s *APIKeyService) CreateAPIKey(ctx context.Context, userID uuid.UUID, label string) (*dto.CreateAPIKeyResponse, error) {
	s.logger.Info("Generating new API key", zap.String("user_id", userID.String()), zap.String("label", label))

	fullKey, prefix, keyHash, err := util.GenerateAPIKey()
	if err != nil {
		s.logger.Error("Failed to generate api key components", zap.Error(err))
		return nil, fmt.Errorf("%w: failed generating key: %v", ierr.ErrInternalServer, err)
	}

	newKey := &apikey.APIKey{
		UserID:           userID,
		KeyHash:          keyHash,
		Prefix:           prefix,
		Label:            label,
		Status:           apikey.StatusActive,
		RateLimitSeconds: s.defaultRateLimit,
	}

	insertedID, err := s.repo.Create(ctx, newKey)
	if err != nil {
		s.logger.Error("Failed to save new api key", zap.Error(err))
		return nil, fmt.Errorf("repository error creating api key: %w", err)
	}

	s.logger.Info("API key created successfully", zap.String("id", insertedID.String()), zap.String("prefix", prefix))

	return &dto.CreateAPIKeyResponse{
		ID:               insertedID,
		FullKey:          fullKey,
		Prefix:           prefix,
		Label:            label,
		RateLimitSeconds: s.defaultRateLimit,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (s *APIKeyService) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*dto.APIKeyResponse, error) {
	keys, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list api keys from repository", zap.Error(err))
		return nil, fmt.Errorf("repository error listing api keys: %w", err)
	}

	responses := make([]*dto.APIKeyResponse, len(keys))
	for i, key := range keys {
		responses[i] = dto.NewAPIKeyResponse(key)
	}
	s.logger.Debug("API keys listed", zap.String("user_id", userID.String()), zap.Int("count", len(responses)))
	return responses, nil
}

func (s *APIKeyService) RevokeAPIKey(ctx context.Context, id, userID uuid.UUID) error {
	s.logger.Info("Attempting to revoke API key", zap.String("id", id.String()))
	if err := s.repo.Revoke(ctx, id, userID); err != nil {
		return s.mapRepoError("revoking", id, err)
	}
	s.logger.Info("API key revoked successfully", zap.String("id", id.String()))
	return nil
}

func (s *APIKeyService) UpdateLabel(ctx context.Context, id, userID uuid.UUID, label string) (*dto.APIKeyResponse, error) {
	if err := s.repo.UpdateLabel(ctx, id, userID, label); err != nil {
		return nil, s.mapRepoError("relabelling", id, err)
	}
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError("reloading", id, err)
	}
	return dto.NewAPIKeyResponse(key), nil
}

func (s *APIKeyService) mapRepoError(op string, id uuid.UUID, err error) error {
	if errors.Is(err, apikey.ErrAPIKeyNotFound) {
		return fmt.Errorf("api key %s: %w", id, ierr.ErrNotFound)
	}
	s.logger.Error("API key repository failure", zap.String("op", op), zap.String("id", id.String()), zap.Error(err))
	return fmt.Errorf("repository error %s api key %s: %w", op, id, err)
}
