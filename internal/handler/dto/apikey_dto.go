package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
)

type CreateAPIKeyRequest struct {
	Label string `json:"label" binding:"required,max=100"`
}

type UpdateAPIKeyRequest struct {
	Label string `json:"label" binding:"required,max=100"`
}

type CreateAPIKeyResponse struct {
	ID               uuid.UUID `json:"id"`
	FullKey          string    `json:"full_key"`
	Prefix           string    `json:"prefix"`
	Label            string    `json:"label"`
	RateLimitSeconds int       `json:"rate_limit_seconds"`
	CreatedAt        time.Time `json:"created_at"`
}

type APIKeyResponse struct {
	ID               uuid.UUID     `json:"id"`
	Prefix           string        `json:"prefix"`
	Label            string        `json:"label"`
	Status           apikey.Status `json:"status"`
	RateLimitSeconds int           `json:"rate_limit_seconds"`
	RequestsToday    int           `json:"requests_today"`
	LastRequestAt    *time.Time    `json:"last_request_at,omitempty"`
	LastUsedAt       *time.Time    `json:"last_used_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

func NewAPIKeyResponse(key *apikey.APIKey) *APIKeyResponse {
	return &APIKeyResponse{
		ID:               key.ID,
		Prefix:           key.Prefix,
		Label:            key.Label,
		Status:           key.Status,
		RateLimitSeconds: key.RateLimitSeconds,
		RequestsToday:    key.RequestsToday,
		LastRequestAt:    key.LastRequestAt,
		LastUsedAt:       key.LastUsedAt,
		CreatedAt:        key.CreatedAt,
	}
}
