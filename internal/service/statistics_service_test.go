package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type memoryCacheRepo struct {
	store map[string][]byte
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = payload
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, _ string) error {
	return nil
}

func newStatisticsFixture(t *testing.T) (*Services, *models.Teacher, *models.Teacher) {
	t.Helper()
	svc := newTestServices(t, newFakeStore())
	svc.Statistics.now = func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	lee := addSpecialist(t, svc, "Lee", "Music")
	kim := addSpecialist(t, svc, "Kim", "Art")
	addHomeroom(t, svc, "Park", "3", "1")
	appendRecord(t, svc, lee.ID, "2024-02-26", firstSlot, "3-1")
	appendRecord(t, svc, lee.ID, monday, firstSlot, "3-1")
	appendRecord(t, svc, lee.ID, "2024-03-05", secondSlot, "3-2")
	appendRecord(t, svc, kim.ID, monday, firstSlot, "3-2")
	return svc, lee, kim
}

func TestStatisticsServiceOverviewAndMonthly(t *testing.T) {
	svc, _, _ := newStatisticsFixture(t)
	ctx := context.Background()

	overview, err := svc.Statistics.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, overview.TotalTeachers)
	assert.Equal(t, 1, overview.HomeroomTeachers)
	assert.Equal(t, 2, overview.SpecialistTeachers)
	assert.Equal(t, 4, overview.TotalSubstitutes)
	assert.Equal(t, 3, overview.ThisMonthSubstitutes)
	assert.Equal(t, "2024-03", overview.Month)

	monthly, err := svc.Statistics.Monthly(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.MonthlyCount{{Month: "2024-02", Count: 1}, {Month: "2024-03", Count: 3}}, monthly)
}

func TestStatisticsServicePatterns(t *testing.T) {
	svc, lee, _ := newStatisticsFixture(t)
	ctx := context.Background()

	patterns, err := svc.Statistics.Patterns(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, patterns.TopTeachers)
	assert.Equal(t, lee.ID, patterns.TopTeachers[0].Key)
	assert.Equal(t, "Lee", patterns.TopTeachers[0].Label)
	assert.Equal(t, 3, patterns.TopTeachers[0].Count)
	assert.Equal(t, models.RankedCount{Key: firstSlot, Label: firstSlot, Count: 3}, patterns.BusySlots[0])
	assert.Equal(t, models.RankedCount{Key: "monday", Label: "monday", Count: 3}, patterns.BusyWeekdays[0])

	require.NoError(t, svc.Teachers.Remove(ctx, lee.ID))
	patterns, err = svc.Statistics.Patterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, unknownTeacher, patterns.TopTeachers[0].Label)
}

func TestStatisticsServiceTeacherStats(t *testing.T) {
	svc, lee, kim := newStatisticsFixture(t)
	ctx := context.Background()

	rows, err := svc.Statistics.TeacherStats(ctx, TeacherStatsFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Kim", "Lee", "Park"}, []string{rows[0].Name, rows[1].Name, rows[2].Name})
	assert.Equal(t, "3-1", rows[2].ClassRef)

	rows, err = svc.Statistics.TeacherStats(ctx, TeacherStatsFilter{Sort: SortByTotal})
	require.NoError(t, err)
	assert.Equal(t, lee.ID, rows[0].TeacherID)
	assert.Equal(t, 3, rows[0].TotalCount)

	rows, err = svc.Statistics.TeacherStats(ctx, TeacherStatsFilter{TeacherID: kim.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].TotalCount)

	rows, err = svc.Statistics.TeacherStats(ctx, TeacherStatsFilter{Role: models.TeacherRoleHomeroom})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Park", rows[0].Name)
}

func TestStatisticsServiceCachesUntilDataChanges(t *testing.T) {
	store := newFakeStore()
	metrics := NewMetricsService()
	cache := NewCacheService(&memoryCacheRepo{}, metrics, time.Minute, zap.NewNop(), true)
	svc := NewServices(
		Repositories{Teachers: store, Substitutes: store, Settings: store, Snapshots: store},
		Options{Metrics: metrics, Cache: cache, Location: time.UTC},
	)
	ctx := context.Background()
	lee := addSpecialist(t, svc, "Lee", "Music")

	first, err := svc.Statistics.Overview(ctx)
	require.NoError(t, err)
	second, err := svc.Statistics.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.TotalSubstitutes, second.TotalSubstitutes)
	assert.Equal(t, uint64(1), metrics.Snapshot().CacheHits)

	appendRecord(t, svc, lee.ID, time.Now().UTC().Format(models.DateLayout), firstSlot, "3-1")
	third, err := svc.Statistics.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, third.TotalSubstitutes)
	assert.Equal(t, uint64(2), metrics.Snapshot().CacheMisses)
}

func TestWeekdayLabel(t *testing.T) {
	assert.Equal(t, "monday", weekdayLabel(monday))
	assert.Equal(t, "saturday", weekdayLabel("2024-03-09"))
	assert.Equal(t, "", weekdayLabel("bad"))
}
