package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

const periodLayout = "2006-01"

type rolloverRepository interface {
	settingRepository
	ApplyRollover(ctx context.Context, teachers []*models.Teacher, period string) error
}

// RolloverService keeps the monthly substitution counters aligned with the
// calendar. ThisMonthCount and LastMonthCount are recomputed from ledger
// record dates whenever the school-local month changes.
type RolloverService struct {
	mu       *sync.RWMutex
	settings rolloverRepository
	teachers *TeacherService
	ledger   *SubstituteService
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time

	period string
}

// NewRolloverService constructs a RolloverService.
func NewRolloverService(mu *sync.RWMutex, settings rolloverRepository, teachers *TeacherService, ledger *SubstituteService, loc *time.Location, logger *zap.Logger) *RolloverService {
	if settings == nil {
		settings = memoryStore{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolloverService{
		mu:       mu,
		settings: settings,
		teachers: teachers,
		ledger:   ledger,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Load reads the last applied period.
func (s *RolloverService) Load(ctx context.Context) error {
	period, err := s.settings.Get(ctx, models.SettingCounterPeriod)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load counter period")
	}
	s.mu.Lock()
	s.period = period
	s.mu.Unlock()
	return nil
}

// Period returns the last applied period.
func (s *RolloverService) Period() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.period
}

// Rollover recomputes the monthly counters when the current month differs
// from the last applied one. force recomputes regardless.
func (s *RolloverService) Rollover(ctx context.Context, force bool) (*models.RolloverResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, last := periodsAt(s.now(), s.location)
	result := &models.RolloverResult{Period: current, PreviousPeriod: s.period}
	if !force && current == s.period {
		return result, nil
	}

	changed := make([]*models.Teacher, 0)
	records := s.ledger.allLocked()
	for _, t := range s.teachers.allLocked() {
		thisMonth, lastMonth := monthCounts(t.ID, records, current, last)
		if thisMonth == t.SubstituteHistory.ThisMonthCount && lastMonth == t.SubstituteHistory.LastMonthCount {
			continue
		}
		next := t.Clone()
		next.SubstituteHistory.ThisMonthCount = thisMonth
		next.SubstituteHistory.LastMonthCount = lastMonth
		changed = append(changed, next)
	}

	if err := s.settings.ApplyRollover(ctx, changed, current); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist counter rollover")
	}
	if len(changed) > 0 {
		s.teachers.swapLocked(changed)
	}
	s.period = current
	result.Rolled = true
	result.Updated = len(changed)

	s.logger.Info("substitute counters rolled over",
		zap.String("actor", actorFrom(ctx)),
		zap.String("period", current),
		zap.String("previous_period", result.PreviousPeriod),
		zap.Int("updated", len(changed)),
	)
	return result, nil
}

// periodsAt returns the current and previous YYYY-MM in loc.
func periodsAt(now time.Time, loc *time.Location) (string, string) {
	local := now.In(loc)
	firstOfMonth := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return local.Format(periodLayout), firstOfMonth.AddDate(0, -1, 0).Format(periodLayout)
}

// monthCounts counts a teacher's records dated in thisMonth and lastMonth.
func monthCounts(teacherID string, records []*models.SubstituteRecord, thisMonth, lastMonth string) (int, int) {
	var current, previous int
	for _, r := range records {
		if r.TeacherID != teacherID {
			continue
		}
		switch r.Month() {
		case thisMonth:
			current++
		case lastMonth:
			previous++
		}
	}
	return current, previous
}

// rebuildHistory derives a complete history from the ledger.
func rebuildHistory(teacherID string, records []*models.SubstituteRecord, thisMonth, lastMonth string) models.SubstituteHistory {
	history := models.SubstituteHistory{Entries: []models.HistoryEntry{}}
	for _, r := range records {
		if r.TeacherID != teacherID {
			continue
		}
		history.TotalCount++
		history.Entries = append(history.Entries, r.Entry())
	}
	history.ThisMonthCount, history.LastMonthCount = monthCounts(teacherID, records, thisMonth, lastMonth)
	return history
}
