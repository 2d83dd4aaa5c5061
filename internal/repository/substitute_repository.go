package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
)

const upsertRecordQuery = `INSERT INTO substitute_records (id, teacher_id, record_date, time_slot, class_ref, reason, created_at, updated_at)
VALUES (:id, :teacher_id, CAST(:date AS DATE), :time_slot, :class_ref, :reason, :created_at, :updated_at)
ON CONFLICT (id)
DO UPDATE SET teacher_id = EXCLUDED.teacher_id, record_date = EXCLUDED.record_date, time_slot = EXCLUDED.time_slot,
              class_ref = EXCLUDED.class_ref, reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at`

const updateHistoryQuery = `UPDATE teachers SET substitute_history = $1 WHERE id = $2`

type recordRow struct {
	ID        string    `db:"id"`
	TeacherID string    `db:"teacher_id"`
	Date      string    `db:"date"`
	Time      string    `db:"time_slot"`
	ClassRef  string    `db:"class_ref"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func newRecordRow(r *models.SubstituteRecord) recordRow {
	return recordRow{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		Date:      r.Date,
		Time:      r.Time,
		ClassRef:  r.ClassRef.String(),
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r recordRow) toModel() (models.SubstituteRecord, error) {
	ref, err := schedule.ParseClassRef(r.ClassRef)
	if err != nil {
		return models.SubstituteRecord{}, fmt.Errorf("decode substitute record %s: %w", r.ID, err)
	}
	return models.SubstituteRecord{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		Date:      r.Date,
		Time:      r.Time,
		ClassRef:  ref,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// SubstituteRepository persists the substitute ledger.
type SubstituteRepository struct {
	db *sqlx.DB
}

// NewSubstituteRepository constructs a SubstituteRepository.
func NewSubstituteRepository(db *sqlx.DB) *SubstituteRepository {
	return &SubstituteRepository{db: db}
}

// ListRecords returns every record in insertion order.
func (r *SubstituteRepository) ListRecords(ctx context.Context) ([]models.SubstituteRecord, error) {
	const query = `SELECT id, teacher_id, to_char(record_date, 'YYYY-MM-DD') AS date, time_slot, class_ref, reason, created_at, updated_at
FROM substitute_records ORDER BY created_at ASC, id ASC`
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list substitute records: %w", err)
	}
	records := make([]models.SubstituteRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toModel()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Apply writes a record change together with the affected teacher histories.
func (r *SubstituteRepository) Apply(ctx context.Context, change models.LedgerChange) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	if err := applyLedgerChange(ctx, tx, change); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func applyLedgerChange(ctx context.Context, tx *sqlx.Tx, change models.LedgerChange) error {
	if change.Upsert != nil {
		if err := upsertRecord(ctx, tx, change.Upsert); err != nil {
			return err
		}
	}
	if change.DeleteID != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM substitute_records WHERE id = $1`, change.DeleteID); err != nil {
			return fmt.Errorf("delete substitute record: %w", err)
		}
	}
	for _, teacher := range change.Teachers {
		history, err := json.Marshal(teacher.SubstituteHistory)
		if err != nil {
			return fmt.Errorf("encode history for teacher %s: %w", teacher.ID, err)
		}
		if _, err := tx.ExecContext(ctx, updateHistoryQuery, history, teacher.ID); err != nil {
			return fmt.Errorf("update history for teacher %s: %w", teacher.ID, err)
		}
	}
	return nil
}

func upsertRecord(ctx context.Context, exec sqlx.ExtContext, record *models.SubstituteRecord) error {
	if _, err := sqlx.NamedExecContext(ctx, exec, upsertRecordQuery, newRecordRow(record)); err != nil {
		return fmt.Errorf("upsert substitute record %s: %w", record.ID, err)
	}
	return nil
}
