package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/pkg/config"
)

func TestMigrateAppliesPendingInOrder(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	fsys := fstest.MapFS{
		"0002_rooms.sql": {Data: []byte("CREATE TABLE rooms (id TEXT)")},
		"0001_users.sql": {Data: []byte("CREATE TABLE users (id TEXT)")},
		"README.md":      {Data: []byte("ignored")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_users"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE rooms (id TEXT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("0002_rooms").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ran, err := Migrate(context.Background(), db, fsys, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_rooms"}, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDSNPrefersURL(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db/peerlearn", DSN(config.DatabaseConfig{URL: "postgres://u:p@db/peerlearn", Host: "ignored"}))
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=peerlearn sslmode=disable application_name=peerlearn-api",
		DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "peerlearn"}))
}

func TestWaitForRetriesUntilReady(t *testing.T) {
	calls := 0
	err := waitFor(context.Background(), 3, zap.NewNop(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = waitFor(context.Background(), 1, zap.NewNop(), func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
