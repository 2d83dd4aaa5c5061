package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

const upsertSettingQuery = `INSERT INTO settings (key, value, updated_at)
VALUES (:key, :value, :updated_at)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

// SettingRepository persists key/value settings such as the time slot
// registry and the last counter rollover period.
type SettingRepository struct {
	db *sqlx.DB
}

// NewSettingRepository constructs the repository.
func NewSettingRepository(db *sqlx.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// ListByKeys returns settings whose key is in the provided slice.
func (r *SettingRepository) ListByKeys(ctx context.Context, keys []string) ([]models.Setting, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT key, value, updated_at FROM settings WHERE key IN (%s) ORDER BY key ASC`, placeholders(len(keys)))
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	var settings []models.Setting
	if err := r.db.SelectContext(ctx, &settings, query, args...); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// Get fetches a single value. A missing key returns sql.ErrNoRows unwrapped.
func (r *SettingRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	if err := r.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = $1`, key); err != nil {
		return "", err
	}
	return value, nil
}

// Put inserts or updates a setting.
func (r *SettingRepository) Put(ctx context.Context, key, value string) error {
	return putSetting(ctx, r.db, key, value)
}

// ApplyRollover writes recounted teachers and the new counter period in one
// transaction.
func (r *SettingRepository) ApplyRollover(ctx context.Context, teachers []*models.Teacher, period string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollover tx: %w", err)
	}
	for _, teacher := range teachers {
		if err := updateTeacher(ctx, tx, teacher); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := putSetting(ctx, tx, models.SettingCounterPeriod, period); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollover tx: %w", err)
	}
	return nil
}

func putSetting(ctx context.Context, exec sqlx.ExtContext, key, value string) error {
	setting := models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	if _, err := sqlx.NamedExecContext(ctx, exec, upsertSettingQuery, setting); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

func placeholders(n int) string {
	values := make([]string, n)
	for i := 1; i <= n; i++ {
		values[i-1] = fmt.Sprintf("$%d", i)
	}
	return strings.Join(values, ",")
}
