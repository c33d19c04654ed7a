package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_Healthy(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	assert.NoError(t, err)
	defer sqlDB.Close()

	db := &DB{Client: sqlDB}

	mock.ExpectPing()
	assert.True(t, db.Healthy(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.False(t, db.Healthy(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_NilIsUnhealthy(t *testing.T) {
	var db *DB
	assert.False(t, db.Healthy(context.Background()))
	assert.NoError(t, db.Close())
}

func TestRedis_Healthy(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := &Redis{Client: client}

	mock.ExpectPing().SetVal("PONG")
	assert.True(t, r.Healthy(context.Background()))

	mock.ExpectPing().SetErr(errors.New("dial tcp: refused"))
	assert.False(t, r.Healthy(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_courses_code"}
	wrapped := fmt.Errorf("insert course: %w", pgErr)

	assert.True(t, IsUniqueViolation(wrapped, ""))
	assert.True(t, IsUniqueViolation(wrapped, "uq_courses_code"))
	assert.False(t, IsUniqueViolation(wrapped, "uq_attendance_daily"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestIsForeignKeyViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503", ConstraintName: "fk_scan_credentials_location"}
	wrapped := fmt.Errorf("insert credential: %w", pgErr)

	assert.True(t, IsForeignKeyViolation(wrapped, ""))
	assert.True(t, IsForeignKeyViolation(wrapped, "fk_scan_credentials_location"))
	assert.False(t, IsForeignKeyViolation(wrapped, "other_fkey"))
	assert.False(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}, ""))
	assert.False(t, IsForeignKeyViolation(nil, ""))
}

func TestVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// newest row first: version 2 was rolled back, 1 is applied
	mock.ExpectQuery(`SELECT version_id, is_applied from goose_db_version ORDER BY id DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"version_id", "is_applied"}).
			AddRow(int64(2), false).
			AddRow(int64(2), true).
			AddRow(int64(1), true))

	version, err := Version(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
