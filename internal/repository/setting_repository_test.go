package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

func TestSettingRepositoryGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSettingRepository(db)

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs(models.SettingTimeSlots).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`["09:00-09:40"]`))
	value, err := repo.Get(context.Background(), models.SettingTimeSlots)
	require.NoError(t, err)
	assert.Equal(t, `["09:00-09:40"]`, value)

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs(models.SettingCounterPeriod).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), models.SettingCounterPeriod)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingRepositoryPut(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSettingRepository(db)

	mock.ExpectExec("INSERT INTO settings").
		WithArgs(models.SettingCounterPeriod, "2024-03", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Put(context.Background(), models.SettingCounterPeriod, "2024-03"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingRepositoryListByKeys(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSettingRepository(db)

	rows := sqlmock.NewRows([]string{"key", "value", "updated_at"}).
		AddRow(models.SettingCounterPeriod, "2024-03", time.Now()).
		AddRow(models.SettingTimeSlots, "[]", time.Now())
	mock.ExpectQuery("SELECT key, value, updated_at FROM settings").
		WithArgs(models.SettingCounterPeriod, models.SettingTimeSlots).
		WillReturnRows(rows)

	settings, err := repo.ListByKeys(context.Background(), []string{models.SettingCounterPeriod, models.SettingTimeSlots})
	require.NoError(t, err)
	assert.Len(t, settings, 2)

	empty, err := repo.ListByKeys(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestSettingRepositoryApplyRolloverCommitsTogether(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSettingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE teachers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO settings").
		WithArgs(models.SettingCounterPeriod, "2024-04", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ApplyRollover(context.Background(), []*models.Teacher{specialistFixture()}, "2024-04"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingRepositoryApplyRolloverRollsBackCounters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSettingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE teachers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO settings").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.ApplyRollover(context.Background(), []*models.Teacher{specialistFixture()}, "2024-04")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert setting counter_period")
	assert.NoError(t, mock.ExpectationsWereMet())
}
