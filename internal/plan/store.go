package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/calmbackend/internal/models"
)

// Store keeps one current plan per user as a JSON blob.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Current returns the user's plan, or nil if none was saved yet.
func (s *Store) Current(ctx context.Context, userID string) (*models.PanicPlan, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT plan FROM current_plans WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current plan: %w", err)
	}

	var p models.PanicPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode current plan: %w", err)
	}
	return &p, nil
}

// SaveCurrent replaces the user's plan.
func (s *Store) SaveCurrent(ctx context.Context, userID string, p models.PanicPlan) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO current_plans (user_id, plan, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET plan = EXCLUDED.plan, updated_at = EXCLUDED.updated_at`,
		userID, raw, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save current plan: %w", err)
	}
	return nil
}
