package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
)

// AvailabilityService recomputes homeroom grids from specialist grids.
type AvailabilityService struct {
	mu       *sync.RWMutex
	teachers *TeacherService
	slots    *TimeSlotService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(mu *sync.RWMutex, teachers *TeacherService, slots *TimeSlotService, metrics *MetricsService, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		mu:       mu,
		teachers: teachers,
		slots:    slots,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Recompute derives every homeroom grid and applies the result as one unit.
// Homeroom teachers whose class cannot be parsed keep their previous grid and
// are reported as skipped.
func (s *AvailabilityService) Recompute(ctx context.Context) (*models.DerivationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recomputeLocked(ctx)
}

func (s *AvailabilityService) recomputeLocked(ctx context.Context) (*models.DerivationReport, error) {
	started := s.now()
	slots := s.slots.getLocked()
	specialists, homerooms := sourcesLocked(s.teachers)

	derivation := schedule.DeriveAll(slots, specialists, homerooms)
	for _, w := range derivation.Skipped {
		s.logger.Warn("homeroom teacher skipped during derivation",
			zap.String("teacher_id", w.TeacherID),
			zap.String("grade", w.Grade),
			zap.String("class_number", w.ClassNumber),
			zap.String("reason", w.Reason),
		)
	}

	changed := make([]*models.Teacher, 0, len(derivation.Grids))
	for _, h := range homerooms {
		grid, ok := derivation.Grids[h.TeacherID]
		if !ok {
			continue
		}
		current, _ := s.teachers.getLocked(h.TeacherID)
		if current.Homeroom.Equal(grid) {
			continue
		}
		next := current.Clone()
		next.Homeroom = grid
		changed = append(changed, next)
	}

	if err := s.teachers.commitLocked(ctx, changed); err != nil {
		return nil, err
	}

	report := &models.DerivationReport{
		Derived:   len(derivation.Grids),
		Changed:   len(changed),
		Skipped:   derivation.Skipped,
		Slots:     len(slots),
		StartedAt: started,
		Duration:  s.now().Sub(started),
	}
	s.metrics.ObserveDerivation(*report)
	s.logger.Info("availability derived",
		zap.Int("derived", report.Derived),
		zap.Int("changed", report.Changed),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

// sourcesLocked splits the directory into derivation inputs, in creation order.
func sourcesLocked(teachers *TeacherService) ([]schedule.SpecialistSource, []schedule.HomeroomSource) {
	var (
		specialists []schedule.SpecialistSource
		homerooms   []schedule.HomeroomSource
	)
	for _, t := range teachers.allLocked() {
		switch t.Role {
		case models.TeacherRoleSpecialist:
			specialists = append(specialists, schedule.SpecialistSource{TeacherID: t.ID, Grid: t.Specialist})
		case models.TeacherRoleHomeroom:
			homerooms = append(homerooms, schedule.HomeroomSource{TeacherID: t.ID, Grade: t.Grade, ClassNumber: t.ClassNumber})
		}
	}
	return specialists, homerooms
}
