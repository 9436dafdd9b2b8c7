package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/models"
	"github.com/google/uuid"
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const userColumns = `id, device_id, secret_hash, tier, subscription_expires_at, created_at, updated_at`

func (r *Repository) FindByDevice(ctx context.Context, deviceID string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE device_id = $1`, deviceID)
	return scanUser(row)
}

func (r *Repository) Get(ctx context.Context, userID string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (r *Repository) CreateAnonymous(ctx context.Context, deviceID, secretHash string) (*models.User, error) {
	now := r.now().UTC()
	user := &models.User{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		SecretHash: secretHash,
		Tier:       models.TierFree,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, device_id, secret_hash, tier, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.DeviceID, user.SecretHash, string(user.Tier), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// SetSubscription records the billing provider's view of the user's tier.
func (r *Repository) SetSubscription(ctx context.Context, userID string, tier models.Tier, expiresAt *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET tier = $1, subscription_expires_at = $2, updated_at = $3 WHERE id = $4`,
		string(tier), expiresAt, r.now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u       models.User
		tier    string
		expires sql.NullTime
	)
	err := row.Scan(&u.ID, &u.DeviceID, &u.SecretHash, &tier, &expires, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Tier = models.Tier(tier)
	if expires.Valid {
		t := expires.Time
		u.SubscriptionExpiresAt = &t
	}
	return &u, nil
}
