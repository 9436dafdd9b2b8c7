package models

import (
	"time"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Users are anonymous: a device id plus a hashed device secret.
type User struct {
	ID                    string     `json:"id"`
	DeviceID              string     `json:"device_id"`
	SecretHash            string     `json:"-"` // never exposed in JSON
	Tier                  Tier       `json:"tier"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

type Progress struct {
	UserID        string    `json:"user_id"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	TotalSessions int       `json:"total_sessions"`
	LastActiveDay string    `json:"last_active_day"` // YYYY-MM-DD
	UpdatedAt     time.Time `json:"updated_at"`
}
