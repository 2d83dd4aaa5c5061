package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
)

var teacherRowColumns = []string{"id", "name", "role", "grade", "class_number", "subject", "schedule", "substitute_history", "created_at", "updated_at"}

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
	}
}

func specialistFixture() *models.Teacher {
	grid := schedule.NewSpecialistGrid([]string{"09:00-09:40"})
	grid.Set(schedule.Monday, "09:00-09:40", schedule.Teaching(schedule.ClassRef{Grade: 3, Class: 1}))
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return &models.Teacher{
		ID:                "t1",
		Name:              "Kim",
		Role:              models.TeacherRoleSpecialist,
		Subject:           "Art",
		Specialist:        grid,
		SubstituteHistory: models.SubstituteHistory{Entries: []models.HistoryEntry{}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestTeacherRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(teacherRowColumns).
		AddRow("t1", "Kim", "specialist", "", "", "Art",
			[]byte(`{"monday":{"09:00-09:40":{"kind":"teaching","classes":["3-1"]}}}`),
			[]byte(`{"totalCount":2,"thisMonthCount":1,"lastMonthCount":1,"entries":[]}`), now, now).
		AddRow("t2", "Park", "homeroom", "3", "1", "", []byte(`null`), []byte(`{}`), now, now)
	mock.ExpectQuery("SELECT id, name, role, grade, class_number, subject, schedule, substitute_history, created_at, updated_at FROM teachers").
		WillReturnRows(rows)

	teachers, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, teachers, 2)

	kim := teachers[0]
	require.NotNil(t, kim.Specialist)
	assert.True(t, kim.SlotAt(schedule.Monday, "09:00-09:40").Covers(schedule.ClassRef{Grade: 3, Class: 1}))
	assert.Equal(t, 2, kim.SubstituteHistory.TotalCount)

	park := teachers[1]
	assert.Nil(t, park.Homeroom)
	assert.NotNil(t, park.SubstituteHistory.Entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryListRejectsCorruptSchedule(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(teacherRowColumns).
		AddRow("t1", "Kim", "specialist", "", "", "Art", []byte(`{"someday":{}}`), []byte(`{}`), now, now)
	mock.ExpectQuery("SELECT id, name").WillReturnRows(rows)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode schedule for teacher t1")
}

func TestTeacherRepositoryCreateUpdateDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)
	teacher := specialistFixture()

	mock.ExpectExec("INSERT INTO teachers").
		WithArgs("t1", "Kim", "specialist", "", "", "Art", sqlmock.AnyArg(), sqlmock.AnyArg(), teacher.CreatedAt, teacher.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Create(context.Background(), teacher))

	mock.ExpectExec("UPDATE teachers").
		WithArgs("Kim", "specialist", "", "", "Art", sqlmock.AnyArg(), sqlmock.AnyArg(), teacher.UpdatedAt, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), teacher))

	mock.ExpectExec("UPDATE teachers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Update(context.Background(), teacher)
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	mock.ExpectExec("DELETE FROM teachers WHERE id").
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "t1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryUpdateManyRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)
	first := specialistFixture()
	second := specialistFixture()
	second.ID = "t2"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE teachers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE teachers").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.UpdateMany(context.Background(), []*models.Teacher{first, second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update teacher t2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryUpdateManyCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE teachers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateMany(context.Background(), []*models.Teacher{specialistFixture()}))
	require.NoError(t, repo.UpdateMany(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRowRoundTrip(t *testing.T) {
	teacher := specialistFixture()
	row, err := newTeacherRow(teacher)
	require.NoError(t, err)

	decoded, err := row.toModel()
	require.NoError(t, err)
	assert.Equal(t, teacher.Name, decoded.Name)
	assert.True(t, decoded.SlotAt(schedule.Monday, "09:00-09:40").Equal(teacher.SlotAt(schedule.Monday, "09:00-09:40")))
}
