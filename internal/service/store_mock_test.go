package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
)

// fakeStore is a map backed stand-in for every repository.
type fakeStore struct {
	teachers map[string]models.Teacher
	records  map[string]models.SubstituteRecord
	settings map[string]string

	createErr     error
	updateManyErr error
	applyErr      error
	putErr        error
	replaceErr    error

	updateManyCalls int
	applyCalls      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		teachers: make(map[string]models.Teacher),
		records:  make(map[string]models.SubstituteRecord),
		settings: make(map[string]string),
	}
}

func (f *fakeStore) List(ctx context.Context) ([]models.Teacher, error) {
	out := make([]models.Teacher, 0, len(f.teachers))
	for _, t := range f.teachers {
		out = append(out, *t.Clone())
	}
	return out, nil
}

func (f *fakeStore) Create(ctx context.Context, teacher *models.Teacher) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.teachers[teacher.ID] = *teacher.Clone()
	return nil
}

func (f *fakeStore) Update(ctx context.Context, teacher *models.Teacher) error {
	f.teachers[teacher.ID] = *teacher.Clone()
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	delete(f.teachers, id)
	return nil
}

func (f *fakeStore) UpdateMany(ctx context.Context, teachers []*models.Teacher) error {
	f.updateManyCalls++
	if f.updateManyErr != nil {
		return f.updateManyErr
	}
	for _, t := range teachers {
		f.teachers[t.ID] = *t.Clone()
	}
	return nil
}

func (f *fakeStore) ListRecords(ctx context.Context) ([]models.SubstituteRecord, error) {
	out := make([]models.SubstituteRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) Apply(ctx context.Context, change models.LedgerChange) error {
	f.applyCalls++
	if f.applyErr != nil {
		return f.applyErr
	}
	if change.Upsert != nil {
		f.records[change.Upsert.ID] = *change.Upsert
	}
	if change.DeleteID != "" {
		delete(f.records, change.DeleteID)
	}
	for _, t := range change.Teachers {
		f.teachers[t.ID] = *t.Clone()
	}
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.settings[key]
	if !ok {
		return "", sql.ErrNoRows
	}
	return value, nil
}

func (f *fakeStore) Put(ctx context.Context, key, value string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.settings[key] = value
	return nil
}

func (f *fakeStore) ApplyRollover(ctx context.Context, teachers []*models.Teacher, period string) error {
	if f.putErr != nil {
		return f.putErr
	}
	for _, t := range teachers {
		f.teachers[t.ID] = *t.Clone()
	}
	f.settings[models.SettingCounterPeriod] = period
	return nil
}

func (f *fakeStore) ReplaceAll(ctx context.Context, snapshot models.Snapshot) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.teachers = make(map[string]models.Teacher)
	for _, t := range snapshot.Teachers {
		f.teachers[t.ID] = *t.Clone()
	}
	f.records = make(map[string]models.SubstituteRecord)
	for _, r := range snapshot.SubstituteRecords {
		f.records[r.ID] = r
	}
	return nil
}

func newTestServices(t *testing.T, store *fakeStore) *Services {
	t.Helper()
	return NewServices(
		Repositories{Teachers: store, Substitutes: store, Settings: store, Snapshots: store},
		Options{Metrics: NewMetricsService(), Location: time.UTC},
	)
}

func addSpecialist(t *testing.T, svc *Services, name, subject string) *models.Teacher {
	t.Helper()
	teacher, err := svc.Teachers.Add(context.Background(), CreateTeacherRequest{Name: name, Role: models.TeacherRoleSpecialist, Subject: subject})
	require.NoError(t, err)
	return teacher
}

func addHomeroom(t *testing.T, svc *Services, name, grade, class string) *models.Teacher {
	t.Helper()
	teacher, err := svc.Teachers.Add(context.Background(), CreateTeacherRequest{Name: name, Role: models.TeacherRoleHomeroom, Grade: grade, ClassNumber: class})
	require.NoError(t, err)
	return teacher
}

func setSlot(t *testing.T, svc *Services, teacherID, day, slot string, state schedule.SlotKind, classes string) {
	t.Helper()
	_, err := svc.Schedules.SetSlot(context.Background(), teacherID, SlotAssignment{Day: day, Time: slot, State: state, Classes: classes})
	require.NoError(t, err)
}
