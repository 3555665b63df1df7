package model

import (
	"time"
)

type APIKey struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	KeyHash         string     `db:"key_hash" json:"-"`
	Class           KeyClass   `db:"class" json:"class"`
	RateLimitPerMin int        `db:"rate_limit_per_minute" json:"rateLimitPerMinute"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	LastUsedAt      *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	DisabledAt      *time.Time `db:"disabled_at" json:"disabledAt,omitempty"`
}

type CreateAPIKeyParams struct {
	Name            string
	KeyHash         string
	Class           KeyClass
	RateLimitPerMin int
	ExpiresAt       *time.Time
}

// Principal is the authenticated caller behind an API key.
type Principal struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Class           KeyClass `json:"class"`
	RateLimitPerMin int      `json:"rateLimitPerMinute"`
}
