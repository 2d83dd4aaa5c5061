package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
)

const teacherColumns = `id, name, role, grade, class_number, subject, schedule, substitute_history, created_at, updated_at`

const insertTeacherQuery = `INSERT INTO teachers (` + teacherColumns + `)
VALUES (:id, :name, :role, :grade, :class_number, :subject, :schedule, :substitute_history, :created_at, :updated_at)`

const updateTeacherQuery = `UPDATE teachers
SET name = :name, role = :role, grade = :grade, class_number = :class_number, subject = :subject,
    schedule = :schedule, substitute_history = :substitute_history, updated_at = :updated_at
WHERE id = :id`

// teacherRow is the storage shape of a teacher. The grid matching the role and
// the substitute history are stored as JSONB documents.
type teacherRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Role        string         `db:"role"`
	Grade       string         `db:"grade"`
	ClassNumber string         `db:"class_number"`
	Subject     string         `db:"subject"`
	Schedule    types.JSONText `db:"schedule"`
	History     types.JSONText `db:"substitute_history"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func newTeacherRow(t *models.Teacher) (teacherRow, error) {
	row := teacherRow{
		ID:          t.ID,
		Name:        t.Name,
		Role:        string(t.Role),
		Grade:       t.Grade,
		ClassNumber: t.ClassNumber,
		Subject:     t.Subject,
		Schedule:    types.JSONText("{}"),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	var grid interface{}
	switch {
	case t.Role == models.TeacherRoleSpecialist && t.Specialist != nil:
		grid = t.Specialist
	case t.Role == models.TeacherRoleHomeroom && t.Homeroom != nil:
		grid = t.Homeroom
	}
	if grid != nil {
		payload, err := json.Marshal(grid)
		if err != nil {
			return teacherRow{}, fmt.Errorf("encode schedule for teacher %s: %w", t.ID, err)
		}
		row.Schedule = payload
	}
	history, err := json.Marshal(t.SubstituteHistory)
	if err != nil {
		return teacherRow{}, fmt.Errorf("encode history for teacher %s: %w", t.ID, err)
	}
	row.History = history
	return row, nil
}

func (r teacherRow) toModel() (models.Teacher, error) {
	teacher := models.Teacher{
		ID:          r.ID,
		Name:        r.Name,
		Role:        models.TeacherRole(r.Role),
		Grade:       r.Grade,
		ClassNumber: r.ClassNumber,
		Subject:     r.Subject,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.Schedule) > 0 && string(r.Schedule) != "null" {
		switch teacher.Role {
		case models.TeacherRoleSpecialist:
			grid := &schedule.SpecialistGrid{}
			if err := r.Schedule.Unmarshal(grid); err != nil {
				return models.Teacher{}, fmt.Errorf("decode schedule for teacher %s: %w", r.ID, err)
			}
			teacher.Specialist = grid
		case models.TeacherRoleHomeroom:
			grid := &schedule.HomeroomGrid{}
			if err := r.Schedule.Unmarshal(grid); err != nil {
				return models.Teacher{}, fmt.Errorf("decode schedule for teacher %s: %w", r.ID, err)
			}
			teacher.Homeroom = grid
		}
	}
	if len(r.History) > 0 {
		if err := r.History.Unmarshal(&teacher.SubstituteHistory); err != nil {
			return models.Teacher{}, fmt.Errorf("decode history for teacher %s: %w", r.ID, err)
		}
	}
	if teacher.SubstituteHistory.Entries == nil {
		teacher.SubstituteHistory.Entries = []models.HistoryEntry{}
	}
	return teacher, nil
}

// TeacherRepository manages persistence for teachers.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns every teacher in creation order.
func (r *TeacherRepository) List(ctx context.Context) ([]models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers ORDER BY created_at ASC, id ASC", teacherColumns)
	var rows []teacherRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	teachers := make([]models.Teacher, 0, len(rows))
	for _, row := range rows {
		teacher, err := row.toModel()
		if err != nil {
			return nil, err
		}
		teachers = append(teachers, teacher)
	}
	return teachers, nil
}

// Create inserts a teacher.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	return insertTeacher(ctx, r.db, teacher)
}

// Update overwrites a teacher. A missing row reports sql.ErrNoRows.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	return updateTeacher(ctx, r.db, teacher)
}

// Delete removes a teacher. Substitute records pointing at it are kept.
func (r *TeacherRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM teachers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	return nil
}

// UpdateMany overwrites several teachers in one transaction.
func (r *TeacherRepository) UpdateMany(ctx context.Context, teachers []*models.Teacher) error {
	if len(teachers) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin teacher batch tx: %w", err)
	}
	for _, teacher := range teachers {
		if err := updateTeacher(ctx, tx, teacher); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit teacher batch tx: %w", err)
	}
	return nil
}

func updateTeacher(ctx context.Context, exec sqlx.ExtContext, teacher *models.Teacher) error {
	row, err := newTeacherRow(teacher)
	if err != nil {
		return err
	}
	res, err := sqlx.NamedExecContext(ctx, exec, updateTeacherQuery, row)
	if err != nil {
		return fmt.Errorf("update teacher %s: %w", teacher.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update teacher %s: %w", teacher.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update teacher %s: %w", teacher.ID, sql.ErrNoRows)
	}
	return nil
}

func insertTeacher(ctx context.Context, exec sqlx.ExtContext, teacher *models.Teacher) error {
	row, err := newTeacherRow(teacher)
	if err != nil {
		return err
	}
	if _, err := sqlx.NamedExecContext(ctx, exec, insertTeacherQuery, row); err != nil {
		return fmt.Errorf("insert teacher %s: %w", teacher.ID, err)
	}
	return nil
}
