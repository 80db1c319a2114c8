package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/ierr"
)

type APIKeyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAPIKeyRepository(db *pgxpool.Pool, logger *zap.Logger) *APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger.Named("APIKeyRepository"),
	}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

const apiKeyColumns = `
	id, user_id, key_hash, prefix, label, status, rate_limit_seconds, requests_today,
	last_request_at, last_used_at, last_reset_at, is_processing, processing_started_at, created_at`

func scanAPIKey(row pgx.Row) (*apikey.APIKey, error) {
	var key apikey.APIKey
	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.KeyHash,
		&key.Prefix,
		&key.Label,
		&key.Status,
		&key.RateLimitSeconds,
		&key.RequestsToday,
		&key.LastRequestAt,
		&key.LastUsedAt,
		&key.LastResetAt,
		&key.IsProcessing,
		&key.ProcessingStartedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// FindByPrefix returns the key regardless of status so callers can tell a
// revoked key from an unknown one.
func (r *APIKeyRepository) FindByPrefix(ctx context.Context, prefix string) (*apikey.APIKey, error) {
	query := `SELECT` + apiKeyColumns + ` FROM api_keys WHERE prefix = $1`

	key, err := scanAPIKey(r.db.QueryRow(ctx, query, prefix))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("API key not found by prefix", zap.String("prefix", prefix))
			return nil, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to find api key by prefix", zap.String("prefix", prefix), zap.Error(err))
		return nil, fmt.Errorf("db error finding api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	query := `SELECT` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	key, err := scanAPIKey(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to find api key by id", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	query := `
		INSERT INTO api_keys (user_id, key_hash, prefix, label, status, rate_limit_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var insertedID uuid.UUID
	err := r.db.QueryRow(ctx, query,
		key.UserID,
		key.KeyHash,
		key.Prefix,
		key.Label,
		key.Status,
		key.RateLimitSeconds,
	).Scan(&insertedID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			r.logger.Warn("Failed to create API key due to unique constraint violation",
				zap.String("constraint", pgErr.ConstraintName),
				zap.String("prefix", key.Prefix),
			)
			return uuid.Nil, fmt.Errorf("api key constraint violation (%s): %w", pgErr.ConstraintName, ierr.ErrConflict)
		}
		r.logger.Error("Failed to create api key in database", zap.Error(err))
		return uuid.Nil, fmt.Errorf("db error creating api key: %w", err)
	}

	r.logger.Info("API key created successfully", zap.String("id", insertedID.String()), zap.String("prefix", key.Prefix))
	return insertedID, nil
}

func (r *APIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*apikey.APIKey, error) {
	query := `SELECT` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list api keys", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("db error listing api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*apikey.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("db error scanning api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error iterating api keys: %w", err)
	}
	return keys, nil
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id, userID uuid.UUID) error {
	query := `UPDATE api_keys SET status = $1 WHERE id = $2 AND user_id = $3`
	cmdTag, err := r.db.Exec(ctx, query, apikey.StatusRevoked, id, userID)
	if err != nil {
		r.logger.Error("Failed to revoke api key", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error revoking api key: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	r.logger.Info("API key revoked", zap.String("id", id.String()))
	return nil
}

func (r *APIKeyRepository) UpdateLabel(ctx context.Context, id, userID uuid.UUID, label string) error {
	query := `UPDATE api_keys SET label = $1 WHERE id = $2 AND user_id = $3`
	cmdTag, err := r.db.Exec(ctx, query, label, id, userID)
	if err != nil {
		r.logger.Error("Failed to update api key label", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error updating api key label: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) TryAcquireProcessing(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE api_keys
		SET is_processing = TRUE, processing_started_at = $2
		WHERE id = $1 AND is_processing = FALSE
	`
	cmdTag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		r.logger.Error("Failed to acquire processing flag", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error acquiring processing flag: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAlreadyLocked
	}
	return nil
}

func (r *APIKeyRepository) ReleaseProcessing(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE api_keys SET is_processing = FALSE, processing_started_at = NULL WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		r.logger.Error("Failed to release processing flag", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error releasing processing flag: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) ResetDailyUsageIfStale(ctx context.Context, id uuid.UUID, dayStart, now time.Time) (int, error) {
	query := `
		UPDATE api_keys
		SET requests_today = CASE WHEN last_reset_at < $2 THEN 0 ELSE requests_today END,
		    last_reset_at  = CASE WHEN last_reset_at < $2 THEN $3 ELSE last_reset_at END
		WHERE id = $1
		RETURNING requests_today
	`
	var requestsToday int
	err := r.db.QueryRow(ctx, query, id, dayStart, now).Scan(&requestsToday)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to reset daily usage", zap.String("id", id.String()), zap.Error(err))
		return 0, fmt.Errorf("db error resetting daily usage: %w", err)
	}
	return requestsToday, nil
}

func (r *APIKeyRepository) CompleteRequest(ctx context.Context, id uuid.UUID, now time.Time) (int, error) {
	query := `
		UPDATE api_keys
		SET last_request_at = $2,
		    last_used_at = $2,
		    requests_today = requests_today + 1,
		    is_processing = FALSE,
		    processing_started_at = NULL
		WHERE id = $1
		RETURNING requests_today
	`
	var requestsToday int
	err := r.db.QueryRow(ctx, query, id, now).Scan(&requestsToday)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to complete request", zap.String("id", id.String()), zap.Error(err))
		return 0, fmt.Errorf("db error completing request: %w", err)
	}
	return requestsToday, nil
}

func (r *APIKeyRepository) ResetStaleCounters(ctx context.Context, dayStart, now time.Time) (int64, error) {
	query := `UPDATE api_keys SET requests_today = 0, last_reset_at = $2 WHERE last_reset_at < $1`
	cmdTag, err := r.db.Exec(ctx, query, dayStart, now)
	if err != nil {
		r.logger.Error("Failed to reset stale counters", zap.Error(err))
		return 0, fmt.Errorf("db error resetting counters: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *APIKeyRepository) ReleaseStaleLocks(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE api_keys
		SET is_processing = FALSE, processing_started_at = NULL
		WHERE is_processing = TRUE AND (processing_started_at IS NULL OR processing_started_at < $1)
	`
	cmdTag, err := r.db.Exec(ctx, query, olderThan)
	if err != nil {
		r.logger.Error("Failed to release stale locks", zap.Error(err))
		return 0, fmt.Errorf("db error releasing stale locks: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
