package migrations

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncUsers_DestructiveDropsAndRecreates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DROP TABLE IF EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, SyncUsers(context.Background(), db, Destructive))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncUsers_AdditiveOnUpToDateTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM information_schema.COLUMNS`).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("dni").AddRow("name"))
	mock.ExpectQuery(`FROM information_schema.STATISTICS`).
		WithArgs("users", "uniq_users_dni").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	require.NoError(t, SyncUsers(context.Background(), db, Additive))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncUsers_AdditiveAddsMissingColumnAndIndex(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM information_schema.COLUMNS`).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("dni"))
	mock.ExpectExec(`ALTER TABLE users ADD COLUMN name VARCHAR\(100\) NOT NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM information_schema.STATISTICS`).
		WithArgs("users", "uniq_users_dni").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`ALTER TABLE users ADD UNIQUE KEY uniq_users_dni`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, SyncUsers(context.Background(), db, Additive))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncUsers_AdditiveToleratesIndexFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM information_schema.COLUMNS`).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("dni").AddRow("name"))
	mock.ExpectQuery(`FROM information_schema.STATISTICS`).
		WithArgs("users", "uniq_users_dni").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`ALTER TABLE users ADD UNIQUE KEY uniq_users_dni`).
		WillReturnError(errors.New("Duplicate entry '1' for key 'uniq_users_dni'"))

	require.NoError(t, SyncUsers(context.Background(), db, Additive))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncUsers_CreateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnError(errors.New("access denied"))

	err = SyncUsers(context.Background(), db, Additive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, Destructive, ModeFor(true))
	assert.Equal(t, Additive, ModeFor(false))
	assert.Equal(t, "destructive", Destructive.String())
	assert.Equal(t, "additive", Additive.String())
}
