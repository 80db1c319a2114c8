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

	"github.com/makkenzo/username-check-api/internal/domain/usage"
)

type UsageRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUsageRepository(db *pgxpool.Pool, logger *zap.Logger) *UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger.Named("UsageRepository"),
	}
}

var _ usage.Repository = (*UsageRepository)(nil)

func (r *UsageRepository) AppendHistory(ctx context.Context, entry *usage.HistoryEntry) error {
	query := `
		INSERT INTO check_history (user_id, username_checked, is_available, api_response, token_used, response_time, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var response []byte
	if len(entry.APIResponse) > 0 {
		response = entry.APIResponse
	}
	_, err := r.db.Exec(ctx, query,
		entry.UserID,
		entry.UsernameChecked,
		entry.IsAvailable,
		response,
		entry.TokenUsed,
		entry.ResponseTimeMs,
		entry.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("db error appending check history: %w", err)
	}
	return nil
}

func (r *UsageRepository) IncrementStats(ctx context.Context, userID uuid.UUID, available bool, at time.Time) error {
	query := `
		INSERT INTO user_stats (user_id, total_checks, available_found, last_active)
		VALUES ($1, 1, CASE WHEN $2 THEN 1 ELSE 0 END, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET total_checks    = user_stats.total_checks + 1,
		    available_found = user_stats.available_found + CASE WHEN $2 THEN 1 ELSE 0 END,
		    last_active     = GREATEST(user_stats.last_active, EXCLUDED.last_active)
	`
	if _, err := r.db.Exec(ctx, query, userID, available, at); err != nil {
		return fmt.Errorf("db error incrementing user stats: %w", err)
	}
	return nil
}

// GetStats returns zeroed stats for a user who has never checked anything.
func (r *UsageRepository) GetStats(ctx context.Context, userID uuid.UUID) (*usage.Stats, error) {
	query := `SELECT user_id, total_checks, available_found, last_active FROM user_stats WHERE user_id = $1`

	var s usage.Stats
	err := r.db.QueryRow(ctx, query, userID).Scan(&s.UserID, &s.TotalChecks, &s.AvailableFound, &s.LastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &usage.Stats{UserID: userID}, nil
		}
		return nil, fmt.Errorf("db error reading user stats: %w", err)
	}
	return &s, nil
}

func (r *UsageRepository) CountHistory(ctx context.Context, userID uuid.UUID) (*usage.HistoryCounts, error) {
	query := `
		SELECT count(*), count(*) FILTER (WHERE is_available)
		FROM check_history
		WHERE user_id = $1
	`
	var counts usage.HistoryCounts
	if err := r.db.QueryRow(ctx, query, userID).Scan(&counts.Total, &counts.Available); err != nil {
		return nil, fmt.Errorf("db error counting check history: %w", err)
	}
	return &counts, nil
}

func (r *UsageRepository) ListSaved(ctx context.Context, userID uuid.UUID) ([]*usage.SavedUsername, error) {
	query := `
		SELECT id, user_id, username, notes, saved_at, is_claimed
		FROM saved_usernames
		WHERE user_id = $1
		ORDER BY saved_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error listing saved usernames: %w", err)
	}
	defer rows.Close()

	saved, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[usage.SavedUsername])
	if err != nil {
		return nil, fmt.Errorf("db error scanning saved usernames: %w", err)
	}
	return saved, nil
}
