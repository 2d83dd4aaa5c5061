package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// SnapshotRepository replaces the whole dataset during restores and resets.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs a SnapshotRepository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// ReplaceAll deletes every teacher and record and writes the snapshot in a
// single transaction.
func (r *SnapshotRepository) ReplaceAll(ctx context.Context, snapshot models.Snapshot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore tx: %w", err)
	}
	if err := replaceAll(ctx, tx, snapshot); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore tx: %w", err)
	}
	return nil
}

func replaceAll(ctx context.Context, tx *sqlx.Tx, snapshot models.Snapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM substitute_records`); err != nil {
		return fmt.Errorf("clear substitute records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM teachers`); err != nil {
		return fmt.Errorf("clear teachers: %w", err)
	}
	for i := range snapshot.Teachers {
		if err := insertTeacher(ctx, tx, &snapshot.Teachers[i]); err != nil {
			return err
		}
	}
	for i := range snapshot.SubstituteRecords {
		if err := upsertRecord(ctx, tx, &snapshot.SubstituteRecords[i]); err != nil {
			return err
		}
	}
	slots, err := json.Marshal(snapshot.TimeSlots)
	if err != nil {
		return fmt.Errorf("encode time slots: %w", err)
	}
	return putSetting(ctx, tx, models.SettingTimeSlots, string(slots))
}
