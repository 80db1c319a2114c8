package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/auditlog"
)

type AuditLogRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAuditLogRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditLogRepository {
	return &AuditLogRepository{
		db:     db,
		logger: logger.Named("AuditLogRepository"),
	}
}

var _ auditlog.Repository = (*AuditLogRepository)(nil)

func (r *AuditLogRepository) Append(ctx context.Context, entry *auditlog.Entry) error {
	var results []byte
	if entry.Results != nil {
		var err error
		results, err = json.Marshal(entry.Results)
		if err != nil {
			return fmt.Errorf("failed to marshal audit results: %w", err)
		}
	}

	var errorMessage *string
	if entry.ErrorMessage != "" {
		errorMessage = &entry.ErrorMessage
	}

	usernames := entry.UsernamesChecked
	if usernames == nil {
		usernames = []string{}
	}

	query := `
		INSERT INTO api_logs (api_key_id, user_id, endpoint, token_name, usernames_checked, results,
		                      status_code, ip_address, user_agent, error_message, processing_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		entry.APIKeyID,
		entry.UserID,
		entry.Endpoint,
		entry.TokenName,
		usernames,
		results,
		entry.StatusCode,
		entry.IPAddress,
		entry.UserAgent,
		errorMessage,
		entry.ProcessingTimeMs,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append audit log entry",
			zap.String("api_key_id", entry.APIKeyID.String()),
			zap.Int("status_code", entry.StatusCode),
			zap.Error(err),
		)
		return fmt.Errorf("db error appending audit log: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) LastForUser(ctx context.Context, userID uuid.UUID) (*auditlog.Entry, error) {
	query := `
		SELECT id, api_key_id, user_id, endpoint, token_name, usernames_checked, results,
		       status_code, ip_address, user_agent, COALESCE(error_message, ''), processing_time, created_at
		FROM api_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var e auditlog.Entry
	var results []byte
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&e.ID,
		&e.APIKeyID,
		&e.UserID,
		&e.Endpoint,
		&e.TokenName,
		&e.UsernamesChecked,
		&results,
		&e.StatusCode,
		&e.IPAddress,
		&e.UserAgent,
		&e.ErrorMessage,
		&e.ProcessingTimeMs,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auditlog.ErrNotFound
		}
		return nil, fmt.Errorf("db error reading last audit entry: %w", err)
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &e.Results); err != nil {
			return nil, fmt.Errorf("failed to decode audit results: %w", err)
		}
	}
	return &e, nil
}
