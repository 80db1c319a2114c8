package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrAlreadyLocked  = errors.New("api key is already processing a request")
)

type Repository interface {
	FindByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	FindByID(ctx context.Context, id uuid.UUID) (*APIKey, error)
	Create(ctx context.Context, key *APIKey) (uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*APIKey, error)
	Revoke(ctx context.Context, id, userID uuid.UUID) error
	UpdateLabel(ctx context.Context, id, userID uuid.UUID, label string) error

	// TryAcquireProcessing sets the processing flag only if it is clear.
	// Returns ErrAlreadyLocked when another request holds it.
	TryAcquireProcessing(ctx context.Context, id uuid.UUID, now time.Time) error
	ReleaseProcessing(ctx context.Context, id uuid.UUID) error

	// ResetDailyUsageIfStale zeroes requests_today when last_reset_at is
	// before dayStart and returns the (possibly reset) counter.
	ResetDailyUsageIfStale(ctx context.Context, id uuid.UUID, dayStart, now time.Time) (int, error)

	// CompleteRequest stamps the request, bumps the daily counter and clears
	// the processing flag in one write. Returns the new counter.
	CompleteRequest(ctx context.Context, id uuid.UUID, now time.Time) (int, error)

	ResetStaleCounters(ctx context.Context, dayStart, now time.Time) (int64, error)
	ReleaseStaleLocks(ctx context.Context, olderThan time.Time) (int64, error)
}
