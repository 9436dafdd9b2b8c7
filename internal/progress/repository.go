package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calmbackend/internal/models"
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const selectProgress = `SELECT current_streak, longest_streak, total_sessions, last_active_day, updated_at
	FROM progress WHERE user_id = $1`

func (r *Repository) Get(ctx context.Context, userID string) (*models.Progress, error) {
	p, err := scanProgress(r.db.QueryRowContext(ctx, selectProgress, userID), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return p, nil
}

// RecordActivity books one session for today and returns the updated streak.
func (r *Repository) RecordActivity(ctx context.Context, userID string) (*models.Progress, error) {
	now := r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanProgress(tx.QueryRowContext(ctx, selectProgress+" FOR UPDATE", userID), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	next := Advance(*current, Day(now))
	next.UpdatedAt = now.UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO progress (user_id, current_streak, longest_streak, total_sessions, last_active_day, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   current_streak = EXCLUDED.current_streak,
		   longest_streak = EXCLUDED.longest_streak,
		   total_sessions = EXCLUDED.total_sessions,
		   last_active_day = EXCLUDED.last_active_day,
		   updated_at = EXCLUDED.updated_at`,
		userID, next.CurrentStreak, next.LongestStreak, next.TotalSessions, next.LastActiveDay, next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit progress: %w", err)
	}
	return &next, nil
}

// scanProgress treats a missing row as empty progress.
func scanProgress(row *sql.Row, userID string) (*models.Progress, error) {
	p := &models.Progress{UserID: userID}
	var last, updated sql.NullTime
	err := row.Scan(&p.CurrentStreak, &p.LongestStreak, &p.TotalSessions, &last, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	if last.Valid {
		p.LastActiveDay = Day(last.Time)
	}
	if updated.Valid {
		p.UpdatedAt = updated.Time
	}
	return p, nil
}
