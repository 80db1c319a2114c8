package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	// IncrementStats adds one check (and one find when available) to the
	// user's running totals without a read-modify-write.
	IncrementStats(ctx context.Context, userID uuid.UUID, available bool, at time.Time) error
	GetStats(ctx context.Context, userID uuid.UUID) (*Stats, error)
	CountHistory(ctx context.Context, userID uuid.UUID) (*HistoryCounts, error)
	ListSaved(ctx context.Context, userID uuid.UUID) ([]*SavedUsername, error)
}
