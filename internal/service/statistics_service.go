package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
)

const (
	statsCachePrefix = "stats"
	topRankingSize   = 5
	unknownTeacher   = "unknown"
)

// TeacherStatsFilter narrows the per-teacher statistics table.
type TeacherStatsFilter struct {
	TeacherID string
	Role      models.TeacherRole
	Sort      string
}

// StatisticsService aggregates the directory and the ledger for reporting.
type StatisticsService struct {
	mu       *sync.RWMutex
	teachers *TeacherService
	ledger   *SubstituteService
	cache    *CacheService
	logger   *zap.Logger
	location *time.Location
	cacheTTL time.Duration
	epoch    string
	now      func() time.Time
}

// NewStatisticsService constructs a StatisticsService. Months are computed in
// loc, which defaults to UTC.
func NewStatisticsService(mu *sync.RWMutex, teachers *TeacherService, ledger *SubstituteService, cache *CacheService, loc *time.Location, cacheTTL time.Duration, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &StatisticsService{
		mu:       mu,
		teachers: teachers,
		ledger:   ledger,
		cache:    cache,
		logger:   logger,
		location: loc,
		cacheTTL: cacheTTL,
		epoch:    fmt.Sprintf("%d", time.Now().UnixNano()),
		now:      time.Now,
	}
}

// Overview returns directory and ledger totals.
func (s *StatisticsService) Overview(ctx context.Context) (*models.StatisticsOverview, error) {
	month := s.currentMonth()
	var out models.StatisticsOverview
	err := s.cached(ctx, "overview:"+month, &out, func() {
		out = models.StatisticsOverview{Month: month, GeneratedAt: s.now().UTC()}
		for _, t := range s.teachers.allLocked() {
			out.TotalTeachers++
			switch t.Role {
			case models.TeacherRoleHomeroom:
				out.HomeroomTeachers++
			case models.TeacherRoleSpecialist:
				out.SpecialistTeachers++
			}
		}
		for _, r := range s.ledger.allLocked() {
			out.TotalSubstitutes++
			if r.Month() == month {
				out.ThisMonthSubstitutes++
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Monthly counts substitutions per YYYY-MM, oldest first.
func (s *StatisticsService) Monthly(ctx context.Context) ([]models.MonthlyCount, error) {
	out := []models.MonthlyCount{}
	err := s.cached(ctx, "monthly", &out, func() {
		counts := make(map[string]int)
		for _, r := range s.ledger.allLocked() {
			counts[r.Month()]++
		}
		out = make([]models.MonthlyCount, 0, len(counts))
		for month, count := range counts {
			out = append(out, models.MonthlyCount{Month: month, Count: count})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	})
	return out, err
}

// Patterns ranks the busiest teachers, slots and weekdays.
func (s *StatisticsService) Patterns(ctx context.Context) (*models.PatternAnalysis, error) {
	var out models.PatternAnalysis
	err := s.cached(ctx, "patterns", &out, func() {
		byTeacher := make(map[string]int)
		bySlot := make(map[string]int)
		byWeekday := make(map[string]int)
		for _, r := range s.ledger.allLocked() {
			byTeacher[r.TeacherID]++
			bySlot[r.Time]++
			if date, err := time.Parse(models.DateLayout, r.Date); err == nil {
				byWeekday[strings.ToLower(date.Weekday().String())]++
			}
		}
		out = models.PatternAnalysis{
			TopTeachers: rank(byTeacher, func(id string) string {
				if t, ok := s.teachers.getLocked(id); ok {
					return t.Name
				}
				return unknownTeacher
			}),
			BusySlots:    rank(bySlot, nil),
			BusyWeekdays: rank(byWeekday, nil),
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TeacherStats returns the per-teacher counters.
func (s *StatisticsService) TeacherStats(ctx context.Context, filter TeacherStatsFilter) ([]models.TeacherStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]models.TeacherStats, 0)
	for _, t := range s.teachers.allLocked() {
		if filter.TeacherID != "" && t.ID != filter.TeacherID {
			continue
		}
		if filter.Role != "" && t.Role != filter.Role {
			continue
		}
		row := models.TeacherStats{
			TeacherID:      t.ID,
			Name:           t.Name,
			Role:           t.Role,
			Subject:        t.Subject,
			TotalCount:     t.SubstituteHistory.TotalCount,
			ThisMonthCount: t.SubstituteHistory.ThisMonthCount,
			LastMonthCount: t.SubstituteHistory.LastMonthCount,
		}
		if ref, err := t.ClassRef(); err == nil && t.Role == models.TeacherRoleHomeroom {
			row.ClassRef = ref.String()
		}
		rows = append(rows, row)
	}

	byName := func(i, j int) bool { return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name) }
	switch strings.ToLower(filter.Sort) {
	case SortByTotal:
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].TotalCount != rows[j].TotalCount {
				return rows[i].TotalCount > rows[j].TotalCount
			}
			return byName(i, j)
		})
	case SortByThisMonth:
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].ThisMonthCount != rows[j].ThisMonthCount {
				return rows[i].ThisMonthCount > rows[j].ThisMonthCount
			}
			return byName(i, j)
		})
	default:
		sort.SliceStable(rows, byName)
	}
	return rows, nil
}

func (s *StatisticsService) currentMonth() string {
	return s.now().In(s.location).Format("2006-01")
}

// cached serves dest from the cache when the directory and ledger versions
// have not moved, otherwise runs compute under the read lock and stores the
// result. A cache failure never fails the request.
func (s *StatisticsService) cached(ctx context.Context, name string, dest interface{}, compute func()) error {
	s.mu.RLock()
	key := fmt.Sprintf("%s:%s:%d:%d:%s", statsCachePrefix, s.epoch, s.teachers.version, s.ledger.version, name)
	s.mu.RUnlock()

	if hit, err := s.cache.Get(ctx, key, dest); err == nil && hit {
		return nil
	}

	s.mu.RLock()
	compute()
	s.mu.RUnlock()

	if err := s.cache.Set(ctx, key, dest, s.cacheTTL); err != nil {
		s.logger.Debug("statistics not cached", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// rank returns the topRankingSize largest counts, ties broken by key.
func rank(counts map[string]int, label func(string) string) []models.RankedCount {
	out := make([]models.RankedCount, 0, len(counts))
	for key, count := range counts {
		entry := models.RankedCount{Key: key, Label: key, Count: count}
		if label != nil {
			entry.Label = label(key)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > topRankingSize {
		out = out[:topRankingSize]
	}
	return out
}

// weekdayLabel is used by exports to print the school day of a record.
func weekdayLabel(date string) string {
	parsed, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return ""
	}
	if day, ok := schedule.DayOf(parsed); ok {
		return string(day)
	}
	return strings.ToLower(parsed.Weekday().String())
}
