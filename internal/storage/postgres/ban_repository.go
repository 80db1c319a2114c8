package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/ban"
)

type BanRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewBanRepository(db *pgxpool.Pool, logger *zap.Logger) *BanRepository {
	return &BanRepository{
		db:     db,
		logger: logger.Named("BanRepository"),
	}
}

var _ ban.Repository = (*BanRepository)(nil)

func (r *BanRepository) FindActive(ctx context.Context, userID uuid.UUID, now time.Time) (*ban.Ban, error) {
	query := `
		SELECT id, user_id, reason, expires_at, created_at
		FROM api_bans
		WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY expires_at DESC NULLS FIRST
		LIMIT 1
	`
	var b ban.Ban
	err := r.db.QueryRow(ctx, query, userID, now).Scan(
		&b.ID,
		&b.UserID,
		&b.Reason,
		&b.ExpiresAt,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ban.ErrNotBanned
		}
		r.logger.Error("Failed to look up active ban", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding ban: %w", err)
	}
	return &b, nil
}
