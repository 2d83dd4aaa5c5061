package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// SlotAssignment sets one cell of a specialist grid. Classes is a free-form
// list such as "1-1, 1-2" and is only read for the teaching state.
type SlotAssignment struct {
	Day     string            `json:"day" validate:"required"`
	Time    string            `json:"time" validate:"required"`
	State   schedule.SlotKind `json:"state" validate:"required,oneof=free teaching unavailable"`
	Classes string            `json:"classes"`
}

// UpdateScheduleRequest carries a batch of cell edits.
type UpdateScheduleRequest struct {
	Slots []SlotAssignment `json:"slots" validate:"required,min=1,dive"`
}

// TeacherSchedule is a grid keyed by the current registry labels.
type TeacherSchedule struct {
	TeacherID string                                        `json:"teacherId"`
	Role      models.TeacherRole                            `json:"role"`
	Editable  bool                                          `json:"editable"`
	TimeSlots []string                                      `json:"timeSlots"`
	Days      []schedule.Day                                `json:"days"`
	Grid      map[schedule.Day]map[string]schedule.SlotState `json:"grid"`
}

// ScheduleService edits specialist grids. Writes never trigger derivation.
type ScheduleService struct {
	mu        *sync.RWMutex
	teachers  *TeacherService
	slots     *TimeSlotService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(mu *sync.RWMutex, teachers *TeacherService, slots *TimeSlotService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		mu:        mu,
		teachers:  teachers,
		slots:     slots,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetSlot writes a single cell.
func (s *ScheduleService) SetSlot(ctx context.Context, teacherID string, assignment SlotAssignment) (*TeacherSchedule, error) {
	return s.SetSlots(ctx, teacherID, UpdateScheduleRequest{Slots: []SlotAssignment{assignment}})
}

// SetSlots writes a batch of cells. Either every cell is applied or none.
func (s *ScheduleService) SetSlots(ctx context.Context, teacherID string, req UpdateScheduleRequest) (*TeacherSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.teachers.getLocked(teacherID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	if current.Role != models.TeacherRoleSpecialist {
		return nil, appErrors.Clone(appErrors.ErrReadOnlySchedule, "homeroom schedules are derived from specialist schedules")
	}

	next := current.Clone()
	if next.Specialist == nil {
		next.Specialist = schedule.NewSpecialistGrid(s.slots.getLocked())
	}
	for i, a := range req.Slots {
		day, label, state, err := s.parseAssignmentLocked(a)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, fmt.Sprintf("slot %d: %v", i, err))
		}
		next.Specialist.Set(day, label, state)
	}
	next.UpdatedAt = s.now()

	if err := s.teachers.commitLocked(ctx, []*models.Teacher{next}); err != nil {
		return nil, err
	}
	s.logger.Debug("specialist schedule updated", zap.String("teacher_id", teacherID), zap.Int("cells", len(req.Slots)))
	return s.viewLocked(next), nil
}

// Grid returns the teacher's grid over the current registry.
func (s *ScheduleService) Grid(ctx context.Context, teacherID string) (*TeacherSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teacher, ok := s.teachers.getLocked(teacherID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return s.viewLocked(teacher), nil
}

func (s *ScheduleService) parseAssignmentLocked(a SlotAssignment) (schedule.Day, string, schedule.SlotState, error) {
	day, err := schedule.ParseDay(a.Day)
	if err != nil {
		return "", "", schedule.SlotState{}, err
	}
	label := strings.TrimSpace(a.Time)
	if err := schedule.ValidateSlotLabel(label); err != nil {
		return "", "", schedule.SlotState{}, err
	}
	if !s.slots.containsLocked(label) {
		return "", "", schedule.SlotState{}, fmt.Errorf("time slot %q is not configured", label)
	}
	switch a.State {
	case schedule.KindFree:
		return day, label, schedule.Free(), nil
	case schedule.KindUnavailable:
		return day, label, schedule.Unavailable(), nil
	case schedule.KindTeaching:
		classes, err := schedule.ParseClassList(a.Classes)
		if err != nil {
			return "", "", schedule.SlotState{}, err
		}
		return day, label, schedule.Teaching(classes...), nil
	}
	return "", "", schedule.SlotState{}, fmt.Errorf("unknown slot state %q", a.State)
}

func (s *ScheduleService) viewLocked(t *models.Teacher) *TeacherSchedule {
	slots := s.slots.getLocked()
	grid := make(map[schedule.Day]map[string]schedule.SlotState, len(schedule.Weekdays))
	for _, day := range schedule.Weekdays {
		cells := make(map[string]schedule.SlotState, len(slots))
		for _, label := range slots {
			cells[label] = t.SlotAt(day, label)
		}
		grid[day] = cells
	}
	return &TeacherSchedule{
		TeacherID: t.ID,
		Role:      t.Role,
		Editable:  t.Role == models.TeacherRoleSpecialist,
		TimeSlots: slots,
		Days:      append([]schedule.Day(nil), schedule.Weekdays...),
		Grid:      grid,
	}
}
