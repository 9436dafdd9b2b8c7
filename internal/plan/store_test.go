package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/calmbackend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Current(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	raw, err := json.Marshal(models.PanicPlan{Title: "Box Breathing", Source: models.PlanSourceTemplate})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT plan FROM current_plans").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow(raw))
	mock.ExpectQuery("SELECT plan FROM current_plans").
		WithArgs("u2").
		WillReturnError(sql.ErrNoRows)

	s := NewStore(conn)
	p, err := s.Current(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Box Breathing", p.Title)

	p, err = s.Current(context.Background(), "u2")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveCurrent(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(conn)
	s.now = func() time.Time { return now }

	mock.ExpectExec("INSERT INTO current_plans").
		WithArgs("u1", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveCurrent(context.Background(), "u1", DefaultPlan()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
