package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTables(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, CreateTables(context.Background(), conn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTables_StopsOnError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))

	assert.Error(t, CreateTables(context.Background(), conn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitDB_RequiresURL(t *testing.T) {
	_, err := InitDB(context.Background(), "")
	assert.Error(t, err)
}
