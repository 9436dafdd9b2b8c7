package models

import "time"

// JournalEntry text, emotion and factors are PHI and encrypted at rest.
// After creation only Locked may change.
type JournalEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion,omitempty"`
	Intensity *int      `json:"intensity,omitempty"`
	Factors   []string  `json:"factors,omitempty"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"`
}
