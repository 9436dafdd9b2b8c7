package checkin

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/calmbackend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Save assigns an id when missing and inserts the check-in.
func (r *Repository) Save(ctx context.Context, c *models.CheckIn) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO check_ins (id, user_id, mood, tags, severity, route, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.UserID, c.Mood, pq.Array(c.Tags), c.Severity, string(c.Route), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save check-in: %w", err)
	}
	return nil
}

// Recent returns the user's latest check-ins, newest first.
func (r *Repository) Recent(ctx context.Context, userID string, limit int) ([]models.CheckIn, error) {
	if limit <= 0 {
		limit = 7
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, mood, tags, severity, route, created_at FROM check_ins
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	var out []models.CheckIn
	for rows.Next() {
		c := models.CheckIn{UserID: userID}
		var route string
		if err := rows.Scan(&c.ID, &c.Mood, pq.Array(&c.Tags), &c.Severity, &route, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		c.Route = models.CheckInRoute(route)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	return out, nil
}
