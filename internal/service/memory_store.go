package service

import (
	"context"
	"database/sql"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// memoryStore stands in for every repository when no database is configured.
// The services already hold the authoritative state, so writes are no-ops and
// loads return nothing.
type memoryStore struct{}

func (memoryStore) Get(ctx context.Context, key string) (string, error) {
	return "", sql.ErrNoRows
}

func (memoryStore) Put(ctx context.Context, key, value string) error { return nil }

func (memoryStore) ApplyRollover(ctx context.Context, teachers []*models.Teacher, period string) error {
	return nil
}

func (memoryStore) List(ctx context.Context) ([]models.Teacher, error) { return nil, nil }

func (memoryStore) Create(ctx context.Context, teacher *models.Teacher) error { return nil }

func (memoryStore) Update(ctx context.Context, teacher *models.Teacher) error { return nil }

func (memoryStore) Delete(ctx context.Context, id string) error { return nil }

func (memoryStore) UpdateMany(ctx context.Context, teachers []*models.Teacher) error { return nil }

func (memoryStore) ListRecords(ctx context.Context) ([]models.SubstituteRecord, error) {
	return nil, nil
}

func (memoryStore) Apply(ctx context.Context, change models.LedgerChange) error { return nil }

func (memoryStore) ReplaceAll(ctx context.Context, snapshot models.Snapshot) error { return nil }
