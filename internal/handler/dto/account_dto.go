package dto

import "time"

type SavedUsernameResponse struct {
	Username  string    `json:"username"`
	Notes     *string   `json:"notes"`
	SavedAt   time.Time `json:"saved_at"`
	IsClaimed bool      `json:"is_claimed"`
}

type SavedUsernamesResponse struct {
	Total          int                     `json:"total"`
	SavedUsernames []SavedUsernameResponse `json:"saved_usernames"`
}

type TokenCounts struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

type CheckCounts struct {
	Total          int64 `json:"total"`
	AvailableFound int64 `json:"available_found"`
	TakenFound     int64 `json:"taken_found"`
}

type StatsResponse struct {
	Tokens         TokenCounts `json:"tokens"`
	Checks         CheckCounts `json:"checks"`
	SavedUsernames int         `json:"saved_usernames"`
	LastAPIRequest *time.Time  `json:"last_api_request"`
}

type APIStats struct {
	TotalKeys         int `json:"total_keys"`
	ActiveKeys        int `json:"active_keys"`
	DailyLimit        int `json:"daily_limit"`
	RequestsToday     int `json:"requests_today"`
	RequestsRemaining int `json:"requests_remaining"`
}

type UsageStats struct {
	TotalChecks    int64      `json:"total_checks"`
	AvailableFound int64      `json:"available_found"`
	LastActive     *time.Time `json:"last_active"`
}

type UserResponse struct {
	UserID      string     `json:"user_id"`
	IsPremium   bool       `json:"is_premium"`
	PremiumPlan *string    `json:"premium_plan"`
	APIStats    APIStats   `json:"api_stats"`
	UsageStats  UsageStats `json:"usage_stats"`
}
