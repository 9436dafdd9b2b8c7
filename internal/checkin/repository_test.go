package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/calmbackend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Save(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	created := time.Date(2026, 4, 2, 7, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO check_ins").
		WithArgs(sqlmock.AnyArg(), "u1", 9, sqlmock.AnyArg(), 3, "crisis", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := &models.CheckIn{UserID: "u1", Mood: 9, Tags: []string{"panic"}, Severity: 3, Route: models.RouteCrisis, CreatedAt: created}
	require.NoError(t, NewRepository(conn).Save(context.Background(), c))
	assert.NotEmpty(t, c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Recent(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	created := time.Date(2026, 4, 2, 7, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, mood, tags, severity, route, created_at FROM check_ins").
		WithArgs("u1", 7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mood", "tags", "severity", "route", "created_at"}).
			AddRow("c-2", 2, "{tired}", 0, "micro_exercise", created).
			AddRow("c-1", 9, "{panic,work}", 3, "crisis", created.Add(-24*time.Hour)))

	list, err := NewRepository(conn).Recent(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.RouteMicroExercise, list[0].Route)
	assert.Equal(t, []string{"panic", "work"}, list[1].Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}
