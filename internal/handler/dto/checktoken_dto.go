package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/makkenzo/username-check-api/internal/domain/checktoken"
)

type CreateCheckTokenRequest struct {
	Name  string `json:"name" binding:"required,max=64"`
	Value string `json:"value" binding:"required"`
}

// CheckTokenResponse never carries the token value.
type CheckTokenResponse struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	UsageCount int64      `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func NewCheckTokenResponse(t *checktoken.Token) *CheckTokenResponse {
	return &CheckTokenResponse{
		ID:         t.ID,
		Name:       t.Name,
		IsActive:   t.IsActive,
		UsageCount: t.UsageCount,
		LastUsedAt: t.LastUsedAt,
		CreatedAt:  t.CreatedAt,
	}
}
