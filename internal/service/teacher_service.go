package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context) ([]models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Delete(ctx context.Context, id string) error
	UpdateMany(ctx context.Context, teachers []*models.Teacher) error
}

// CreateTeacherRequest represents payload for creating teachers.
type CreateTeacherRequest struct {
	Name        string             `json:"name" validate:"required,min=2,max=100"`
	Role        models.TeacherRole `json:"role" validate:"required,oneof=homeroom specialist"`
	Grade       string             `json:"grade" validate:"omitempty,max=20"`
	ClassNumber string             `json:"classNumber" validate:"omitempty,max=20"`
	Subject     string             `json:"subject" validate:"omitempty,max=100"`
}

// UpdateTeacherRequest patches a teacher. Nil fields are left untouched.
type UpdateTeacherRequest struct {
	Name        *string             `json:"name" validate:"omitempty,min=2,max=100"`
	Role        *models.TeacherRole `json:"role" validate:"omitempty,oneof=homeroom specialist"`
	Grade       *string             `json:"grade" validate:"omitempty,max=20"`
	ClassNumber *string             `json:"classNumber" validate:"omitempty,max=20"`
	Subject     *string             `json:"subject" validate:"omitempty,max=100"`
}

// TeacherFilter narrows directory listings.
type TeacherFilter struct {
	Role   models.TeacherRole
	Search string
}

// BulkTeacherError describes one rejected bulk row.
type BulkTeacherError struct {
	Index int                  `json:"index"`
	Data  CreateTeacherRequest `json:"data"`
	Code  string               `json:"code"`
	Error string               `json:"error"`
}

// BulkTeacherResult reports a partially successful bulk import.
type BulkTeacherResult struct {
	Success []models.Teacher   `json:"success"`
	Errors  []BulkTeacherError `json:"errors"`
	Total   int                `json:"total"`
}

// TeacherService owns the teacher directory.
type TeacherService struct {
	mu        *sync.RWMutex
	repo      teacherRepository
	slots     *TimeSlotService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time

	teachers map[string]*models.Teacher
	order    []string
	version  uint64
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(mu *sync.RWMutex, repo teacherRepository, slots *TimeSlotService, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if mu == nil {
		mu = &sync.RWMutex{}
	}
	if repo == nil {
		repo = memoryStore{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if slots == nil {
		slots = NewTimeSlotService(mu, nil, nil, logger)
	}
	return &TeacherService{
		mu:        mu,
		repo:      repo,
		slots:     slots,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		teachers:  make(map[string]*models.Teacher),
	}
}

// Load replaces the in-memory directory with the persisted one.
func (s *TeacherService) Load(ctx context.Context) error {
	teachers, err := s.repo.List(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceAllLocked(teachers)
	return nil
}

// Add registers a new teacher with an initial grid for its role.
func (s *TeacherService) Add(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	teacher, err := s.prepareLocked(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	s.insertLocked(teacher)
	return teacher.Clone(), nil
}

// BulkAdd adds every valid row and reports the rejected ones. Names must be
// unique across the directory and the batch.
func (s *TeacherService) BulkAdd(ctx context.Context, rows []CreateTeacherRequest) (*BulkTeacherResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &BulkTeacherResult{Success: []models.Teacher{}, Errors: []BulkTeacherError{}, Total: len(rows)}
	names := make(map[string]struct{}, len(s.teachers)+len(rows))
	for _, t := range s.teachers {
		names[nameKey(t.Name)] = struct{}{}
	}

	for i, row := range rows {
		teacher, err := s.prepareLocked(row)
		if err == nil {
			if _, taken := names[nameKey(teacher.Name)]; taken {
				err = appErrors.Clone(appErrors.ErrConflict, "teacher name already exists")
			}
		}
		if err == nil {
			if createErr := s.repo.Create(ctx, teacher); createErr != nil {
				err = appErrors.Wrap(createErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
			}
		}
		if err != nil {
			appErr := appErrors.FromError(err)
			result.Errors = append(result.Errors, BulkTeacherError{Index: i, Data: row, Code: appErr.Code, Error: appErr.Message})
			continue
		}
		s.insertLocked(teacher)
		names[nameKey(teacher.Name)] = struct{}{}
		result.Success = append(result.Success, *teacher.Clone())
	}

	s.logger.Info("bulk teacher import finished",
		zap.Int("total", result.Total),
		zap.Int("added", len(result.Success)),
		zap.Int("rejected", len(result.Errors)),
	)
	return result, nil
}

// Update applies a patch and refreshes UpdatedAt. A role change resets the
// grid to the new role's initial grid.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.teachers[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	next := current.Clone()
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.Grade != nil {
		next.Grade = strings.TrimSpace(*req.Grade)
	}
	if req.ClassNumber != nil {
		next.ClassNumber = strings.TrimSpace(*req.ClassNumber)
	}
	if req.Subject != nil {
		next.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Role != nil && *req.Role != next.Role {
		next.Role = *req.Role
		next.Specialist = nil
		next.Homeroom = nil
	}
	if len([]rune(next.Name)) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name must be at least 2 characters")
	}
	if err := s.normalizeRoleLocked(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, next); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	s.swapLocked([]*models.Teacher{next})
	return next.Clone(), nil
}

// Remove deletes a teacher. Ledger records pointing at it are kept.
func (s *TeacherService) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teachers[id]; !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	delete(s.teachers, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.version++
	return nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teacher, ok := s.teachers[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return teacher.Clone(), nil
}

// List returns teachers in creation order, optionally filtered.
func (s *TeacherService) List(ctx context.Context, filter TeacherFilter) []models.Teacher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Teacher, 0, len(s.order))
	for _, t := range s.allLocked() {
		if filter.Role != "" && t.Role != filter.Role {
			continue
		}
		if !t.MatchesQuery(filter.Search) {
			continue
		}
		out = append(out, *t.Clone())
	}
	return out
}

// ListByRole returns teachers of one role.
func (s *TeacherService) ListByRole(ctx context.Context, role models.TeacherRole) []models.Teacher {
	return s.List(ctx, TeacherFilter{Role: role})
}

// Search matches query against name, role and grade, case-insensitively.
func (s *TeacherService) Search(ctx context.Context, query string) []models.Teacher {
	return s.List(ctx, TeacherFilter{Search: query})
}

// Version increases on every directory mutation.
func (s *TeacherService) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *TeacherService) prepareLocked(req CreateTeacherRequest) (*models.Teacher, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Grade = strings.TrimSpace(req.Grade)
	req.ClassNumber = strings.TrimSpace(req.ClassNumber)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Role = models.TeacherRole(strings.ToLower(string(req.Role)))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	now := s.now()
	teacher := &models.Teacher{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Role:              req.Role,
		Grade:             req.Grade,
		ClassNumber:       req.ClassNumber,
		Subject:           req.Subject,
		SubstituteHistory: models.SubstituteHistory{Entries: []models.HistoryEntry{}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.normalizeRoleLocked(teacher); err != nil {
		return nil, err
	}
	return teacher, nil
}

// normalizeRoleLocked enforces the role specific fields and makes sure the
// teacher holds exactly the grid type of its role.
func (s *TeacherService) normalizeRoleLocked(t *models.Teacher) error {
	switch t.Role {
	case models.TeacherRoleHomeroom:
		ref, err := t.ClassRef()
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, "homeroom teachers need a valid grade and class number")
		}
		t.Grade = strconv.Itoa(ref.Grade)
		t.ClassNumber = strconv.Itoa(ref.Class)
		t.Specialist = nil
		if t.Homeroom == nil {
			t.Homeroom = schedule.PendingHomeroomGrid(s.slots.getLocked())
		}
	case models.TeacherRoleSpecialist:
		if t.Subject == "" {
			return appErrors.Clone(appErrors.ErrValidation, "specialist teachers need a subject")
		}
		t.ClassNumber = ""
		t.Homeroom = nil
		if t.Specialist == nil {
			t.Specialist = schedule.NewSpecialistGrid(s.slots.getLocked())
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown teacher role")
	}
	return nil
}

func (s *TeacherService) insertLocked(t *models.Teacher) {
	s.teachers[t.ID] = t.Clone()
	s.order = append(s.order, t.ID)
	s.version++
}

// getLocked returns the stored teacher. Callers must not mutate it.
func (s *TeacherService) getLocked(id string) (*models.Teacher, bool) {
	t, ok := s.teachers[id]
	return t, ok
}

// allLocked returns the stored teachers in creation order. Callers must not
// mutate them.
func (s *TeacherService) allLocked() []*models.Teacher {
	out := make([]*models.Teacher, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.teachers[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// commitLocked persists changed teachers in one batch, then swaps them in.
func (s *TeacherService) commitLocked(ctx context.Context, changed []*models.Teacher) error {
	if len(changed) == 0 {
		return nil
	}
	if err := s.repo.UpdateMany(ctx, changed); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist teachers")
	}
	s.swapLocked(changed)
	return nil
}

// swapLocked replaces stored teachers with already persisted copies.
func (s *TeacherService) swapLocked(changed []*models.Teacher) {
	for _, t := range changed {
		if _, ok := s.teachers[t.ID]; !ok {
			continue
		}
		s.teachers[t.ID] = t.Clone()
	}
	s.version++
}

// replaceAllLocked swaps the whole directory, keeping creation order.
func (s *TeacherService) replaceAllLocked(teachers []models.Teacher) {
	sorted := append([]models.Teacher(nil), teachers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	s.teachers = make(map[string]*models.Teacher, len(sorted))
	s.order = make([]string, 0, len(sorted))
	for i := range sorted {
		t := sorted[i].Clone()
		switch {
		case t.Role == models.TeacherRoleSpecialist && t.Specialist == nil:
			t.Specialist = schedule.NewSpecialistGrid(s.slots.getLocked())
		case t.Role == models.TeacherRoleHomeroom && t.Homeroom == nil:
			t.Homeroom = schedule.PendingHomeroomGrid(s.slots.getLocked())
		}
		s.teachers[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	s.version++
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
