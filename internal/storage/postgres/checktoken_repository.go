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

	"github.com/makkenzo/username-check-api/internal/domain/checktoken"
	"github.com/makkenzo/username-check-api/internal/ierr"
)

// Sealer seals token values before they reach the table.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type CheckTokenRepository struct {
	db     *pgxpool.Pool
	sealer Sealer
	logger *zap.Logger
}

func NewCheckTokenRepository(db *pgxpool.Pool, sealer Sealer, logger *zap.Logger) *CheckTokenRepository {
	return &CheckTokenRepository{
		db:     db,
		sealer: sealer,
		logger: logger.Named("CheckTokenRepository"),
	}
}

var _ checktoken.Repository = (*CheckTokenRepository)(nil)

func (r *CheckTokenRepository) FindByName(ctx context.Context, userID uuid.UUID, name string) (*checktoken.Token, error) {
	query := `
		SELECT id, user_id, token_name, token_value, is_active, usage_count, last_used_at, created_at
		FROM user_tokens
		WHERE user_id = $1 AND token_name = $2
	`
	var t checktoken.Token
	var sealed string
	err := r.db.QueryRow(ctx, query, userID, name).Scan(
		&t.ID,
		&t.UserID,
		&t.Name,
		&sealed,
		&t.IsActive,
		&t.UsageCount,
		&t.LastUsedAt,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checktoken.ErrNotFound
		}
		r.logger.Error("Failed to find check token", zap.String("user_id", userID.String()), zap.String("token_name", name), zap.Error(err))
		return nil, fmt.Errorf("db error finding check token: %w", err)
	}

	value, err := r.sealer.Open(sealed)
	if err != nil {
		r.logger.Error("Failed to open check token value", zap.String("id", t.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to open check token: %w", err)
	}
	t.Value = value
	return &t, nil
}

func (r *CheckTokenRepository) RecordUsage(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE user_tokens SET usage_count = usage_count + 1, last_used_at = $2 WHERE id = $1`
	cmdTag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error recording token usage: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return checktoken.ErrNotFound
	}
	return nil
}

func (r *CheckTokenRepository) Create(ctx context.Context, token *checktoken.Token) (uuid.UUID, error) {
	sealed, err := r.sealer.Seal(token.Value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to seal check token: %w", err)
	}

	query := `
		INSERT INTO user_tokens (user_id, token_name, token_value, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var insertedID uuid.UUID
	err = r.db.QueryRow(ctx, query, token.UserID, token.Name, sealed, token.IsActive).Scan(&insertedID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return uuid.Nil, fmt.Errorf("token name %q already exists: %w", token.Name, ierr.ErrConflict)
		}
		r.logger.Error("Failed to create check token", zap.Error(err))
		return uuid.Nil, fmt.Errorf("db error creating check token: %w", err)
	}
	return insertedID, nil
}

// ListByUser leaves Value empty.
func (r *CheckTokenRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*checktoken.Token, error) {
	query := `
		SELECT id, user_id, token_name, is_active, usage_count, last_used_at, created_at
		FROM user_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error listing check tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*checktoken.Token, 0)
	for rows.Next() {
		var t checktoken.Token
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.IsActive, &t.UsageCount, &t.LastUsedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error scanning check token: %w", err)
		}
		tokens = append(tokens, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error iterating check tokens: %w", err)
	}
	return tokens, nil
}

func (r *CheckTokenRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM user_tokens WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("db error deleting check token: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return checktoken.ErrNotFound
	}
	return nil
}
