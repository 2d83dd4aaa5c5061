package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// Candidate sort keys.
const (
	SortByName      = "name"
	SortByTotal     = "total"
	SortByThisMonth = "month"
)

// CandidateService answers "who is free at this date and slot".
type CandidateService struct {
	mu       *sync.RWMutex
	teachers *TeacherService
	slots    *TimeSlotService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewCandidateService constructs a CandidateService.
func NewCandidateService(mu *sync.RWMutex, teachers *TeacherService, slots *TimeSlotService, metrics *MetricsService, logger *zap.Logger) *CandidateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CandidateService{mu: mu, teachers: teachers, slots: slots, metrics: metrics, logger: logger}
}

// Search lists eligible substitutes. A weekend date or a slot that is not in
// the registry yields an empty result; malformed input is InvalidFormat.
func (s *CandidateService) Search(ctx context.Context, query models.CandidateQuery) (*models.CandidateResult, error) {
	result := &models.CandidateResult{
		Date:       strings.TrimSpace(query.Date),
		Time:       strings.TrimSpace(query.Time),
		Class:      strings.TrimSpace(query.Class),
		Candidates: []models.Candidate{},
	}

	day, weekday, err := resolveDay(result.Date, query.Day)
	if err != nil {
		return nil, err
	}
	if err := schedule.ValidateSlotLabel(result.Time); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, err.Error())
	}
	var requesting schedule.ClassRef
	if result.Class != "" {
		requesting, err = schedule.ParseClassRef(result.Class)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, err.Error())
		}
		result.Class = requesting.String()
	}
	if !weekday {
		s.metrics.ObserveCandidateSearch(0)
		return result, nil
	}
	result.Day = day

	s.mu.RLock()
	if s.slots.containsLocked(result.Time) {
		specialists, homerooms := sourcesLocked(s.teachers)
		for _, m := range schedule.FindCandidates(day, result.Time, specialists, homerooms) {
			teacher, ok := s.teachers.getLocked(m.TeacherID)
			if !ok {
				continue
			}
			result.Candidates = append(result.Candidates, models.Candidate{
				Teacher:                teacher.Clone(),
				Reason:                 m.Reason,
				FreedBy:                m.FreedBy,
				RequestingClassTeacher: !requesting.IsZero() && m.Reason == schedule.ReasonHomeroomFreed && m.Class == requesting,
			})
		}
	}
	s.mu.RUnlock()

	SortCandidates(result.Candidates, query.Sort)
	s.metrics.ObserveCandidateSearch(len(result.Candidates))
	s.logger.Debug("substitute candidates searched",
		zap.String("day", string(day)),
		zap.String("time", result.Time),
		zap.Int("found", len(result.Candidates)),
	)
	return result, nil
}

// SortCandidates orders candidates for presentation. Count orders are
// descending; ties fall back to name. An empty key keeps discovery order.
func SortCandidates(candidates []models.Candidate, key string) {
	name := func(i, j int) bool {
		return strings.ToLower(candidates[i].Teacher.Name) < strings.ToLower(candidates[j].Teacher.Name)
	}
	switch strings.ToLower(strings.TrimSpace(key)) {
	case SortByName:
		sort.SliceStable(candidates, name)
	case SortByTotal:
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i].Teacher.SubstituteHistory.TotalCount, candidates[j].Teacher.SubstituteHistory.TotalCount
			if a != b {
				return a > b
			}
			return name(i, j)
		})
	case SortByThisMonth:
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i].Teacher.SubstituteHistory.ThisMonthCount, candidates[j].Teacher.SubstituteHistory.ThisMonthCount
			if a != b {
				return a > b
			}
			return name(i, j)
		})
	}
}

// resolveDay turns a calendar date, or a weekday name when no date is given,
// into a school day. The bool is false for weekend dates.
func resolveDay(date string, day schedule.Day) (schedule.Day, bool, error) {
	if date != "" {
		parsed, err := time.Parse(models.DateLayout, date)
		if err != nil {
			return "", false, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, "date must be formatted as YYYY-MM-DD")
		}
		d, ok := schedule.DayOf(parsed)
		return d, ok, nil
	}
	if day == "" {
		return "", false, appErrors.Clone(appErrors.ErrValidation, "date or day is required")
	}
	d, err := schedule.ParseDay(string(day))
	if err != nil {
		return "", false, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, err.Error())
	}
	return d, true, nil
}
