package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calmbackend/internal/models"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound      = errors.New("journal entry not found")
	ErrInvalidCursor = errors.New("invalid journal cursor")
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// FieldCipher encrypts journal fields for one user.
type FieldCipher interface {
	Encrypt(ctx context.Context, userID, plaintext string) (string, error)
	Decrypt(ctx context.Context, userID, ciphertext string) (string, error)
	EncryptAll(ctx context.Context, userID string, values []string) ([]string, error)
	DecryptAll(ctx context.Context, userID string, values []string) ([]string, error)
}

type CreateRequest struct {
	Text      string   `json:"text" validate:"required,max=10000"`
	Emotion   string   `json:"emotion" validate:"max=40"`
	Intensity *int     `json:"intensity" validate:"omitempty,min=0,max=10"`
	Factors   []string `json:"factors" validate:"max=20,dive,max=60"`
}

// Repository stores journal entries. Text, emotion and factors are encrypted
// before they reach Postgres. Entries never change after creation apart from
// the lock flag.
type Repository struct {
	db     *sql.DB
	cipher FieldCipher
	now    func() time.Time
}

func NewRepository(db *sql.DB, cipher FieldCipher) *Repository {
	return &Repository{db: db, cipher: cipher, now: time.Now}
}

func (r *Repository) Create(ctx context.Context, userID string, req CreateRequest) (*models.JournalEntry, error) {
	text, err := r.cipher.Encrypt(ctx, userID, req.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt text: %w", err)
	}
	emotion, err := r.cipher.Encrypt(ctx, userID, req.Emotion)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt emotion: %w", err)
	}
	factors, err := r.cipher.EncryptAll(ctx, userID, req.Factors)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt factors: %w", err)
	}

	now := r.now().UTC()
	entry := &models.JournalEntry{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:    userID,
		Text:      req.Text,
		Emotion:   req.Emotion,
		Intensity: req.Intensity,
		Factors:   req.Factors,
		CreatedAt: now,
	}

	var intensity sql.NullInt64
	if req.Intensity != nil {
		intensity = sql.NullInt64{Int64: int64(*req.Intensity), Valid: true}
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, user_id, text, emotion, intensity, factors, locked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		entry.ID, userID, text, emotion, intensity, pq.Array(factors), now)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal entry: %w", err)
	}
	return entry, nil
}

const selectEntry = `SELECT id, text, emotion, intensity, factors, locked, created_at FROM journal_entries`

// Cursor is the position after the last entry of a page. Entries are ordered
// by (created_at, id), so entries sharing a timestamp are never skipped.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func CursorOf(e models.JournalEntry) Cursor {
	return Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero()
}

// String renders the cursor as "<RFC 3339 timestamp>_<id>".
func (c Cursor) String() string {
	if c.IsZero() {
		return ""
	}
	s := c.CreatedAt.UTC().Format(time.RFC3339Nano)
	if c.ID != "" {
		s += "_" + c.ID
	}
	return s
}

// ParseCursor accepts the form produced by String or a bare RFC 3339
// timestamp, which matches everything created strictly earlier.
func ParseCursor(raw string) (Cursor, error) {
	ts, id, _ := strings.Cut(raw, "_")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return Cursor{CreatedAt: t.UTC(), ID: id}, nil
}

// List returns up to limit entries, newest first, starting after the cursor.
func (r *Repository) List(ctx context.Context, userID string, limit int, after Cursor) ([]models.JournalEntry, error) {
	limit = PageSize(limit)

	query := selectEntry + ` WHERE user_id = $1 AND created_at < $2 ORDER BY created_at DESC, id DESC LIMIT $3`
	args := []any{userID, r.now().UTC().Add(time.Minute), limit}
	switch {
	case after.ID != "":
		query = selectEntry + ` WHERE user_id = $1 AND (created_at, id) < ($2, $3) ORDER BY created_at DESC, id DESC LIMIT $4`
		args = []any{userID, after.CreatedAt.UTC(), after.ID, limit}
	case !after.IsZero():
		args[1] = after.CreatedAt.UTC()
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	entries := []models.JournalEntry{}
	for rows.Next() {
		e, err := r.scan(ctx, rows, userID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	return entries, nil
}

// PageSize clamps a requested page size.
func PageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func (r *Repository) Get(ctx context.Context, userID, id string) (*models.JournalEntry, error) {
	row := r.db.QueryRowContext(ctx, selectEntry+` WHERE user_id = $1 AND id = $2`, userID, id)
	e, err := r.scan(ctx, row, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// SetLocked is the only mutation allowed on an existing entry.
func (r *Repository) SetLocked(ctx context.Context, userID, id string, locked bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE journal_entries SET locked = $1 WHERE user_id = $2 AND id = $3`, locked, userID, id)
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM journal_entries WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete journal entry: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scan(ctx context.Context, s scanner, userID string) (*models.JournalEntry, error) {
	var (
		e         = models.JournalEntry{UserID: userID}
		text      string
		emotion   string
		intensity sql.NullInt64
		factors   []string
	)
	if err := s.Scan(&e.ID, &text, &emotion, &intensity, pq.Array(&factors), &e.Locked, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan journal entry: %w", err)
	}

	var err error
	if e.Text, err = r.cipher.Decrypt(ctx, userID, text); err != nil {
		return nil, fmt.Errorf("failed to decrypt text: %w", err)
	}
	if e.Emotion, err = r.cipher.Decrypt(ctx, userID, emotion); err != nil {
		return nil, fmt.Errorf("failed to decrypt emotion: %w", err)
	}
	if len(factors) > 0 {
		if e.Factors, err = r.cipher.DecryptAll(ctx, userID, factors); err != nil {
			return nil, fmt.Errorf("failed to decrypt factors: %w", err)
		}
	}
	if intensity.Valid {
		v := int(intensity.Int64)
		e.Intensity = &v
	}
	return &e, nil
}
