package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/metrics"
)

// Housekeeper is the part of apikey.Repository the maintenance tasks touch.
type Housekeeper interface {
	ResetStaleCounters(ctx context.Context, dayStart, now time.Time) (int64, error)
	ReleaseStaleLocks(ctx context.Context, olderThan time.Time) (int64, error)
}

type HousekeepingHandler struct {
	repo           Housekeeper
	staleLockAfter time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

func NewHousekeepingHandler(repo Housekeeper, staleLockAfter time.Duration, logger *zap.Logger) *HousekeepingHandler {
	return &HousekeepingHandler{
		repo:           repo,
		staleLockAfter: staleLockAfter,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         logger.Named("HousekeepingHandler"),
	}
}

// ResetCounters zeroes daily counters of every key not yet reset today. The
// request path only resets the key it serves.
func (h *HousekeepingHandler) ResetCounters(ctx context.Context, t *asynq.Task) error {
	if err := h.decode(t, TypeResetCounters); err != nil {
		return err
	}

	now := h.now()
	n, err := h.repo.ResetStaleCounters(ctx, apikey.DayStart(now), now)
	if err != nil {
		h.logger.Error("Failed to reset stale daily counters", zap.Error(err))
		return fmt.Errorf("repository error resetting counters: %w", err)
	}

	metrics.RecordHousekeeping("reset_counters", n)
	h.logger.Info("Daily counter reset finished", zap.Int64("keys_reset", n))
	return nil
}

// ReleaseLocks clears processing flags held longer than staleLockAfter, which
// only happens when a process died mid-request.
func (h *HousekeepingHandler) ReleaseLocks(ctx context.Context, t *asynq.Task) error {
	if err := h.decode(t, TypeReleaseLocks); err != nil {
		return err
	}

	n, err := h.repo.ReleaseStaleLocks(ctx, h.now().Add(-h.staleLockAfter))
	if err != nil {
		h.logger.Error("Failed to release stale processing locks", zap.Error(err))
		return fmt.Errorf("repository error releasing locks: %w", err)
	}

	metrics.RecordHousekeeping("release_locks", n)
	if n > 0 {
		h.logger.Warn("Released stale processing locks", zap.Int64("keys_released", n), zap.Duration("older_than", h.staleLockAfter))
	}
	return nil
}

func (h *HousekeepingHandler) decode(t *asynq.Task, want string) error {
	if t.Type() != want {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}
	var p HousekeepingPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal housekeeping payload", zap.String("type", t.Type()), zap.ByteString("payload", t.Payload()), zap.Error(err))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}
