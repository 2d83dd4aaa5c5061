package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

func TestSnapshotRepositoryReplaceAll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM substitute_records").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM teachers").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO teachers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO substitute_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO settings").
		WithArgs(models.SettingTimeSlots, `["09:00-09:40"]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ReplaceAll(context.Background(), models.Snapshot{
		Teachers:          []models.Teacher{*specialistFixture()},
		SubstituteRecords: []models.SubstituteRecord{*recordFixture()},
		TimeSlots:         []string{"09:00-09:40"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepositoryReplaceAllRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM substitute_records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM teachers").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := repo.ReplaceAll(context.Background(), models.Snapshot{TimeSlots: []string{"09:00-09:40"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear teachers")
	assert.NoError(t, mock.ExpectationsWereMet())
}
