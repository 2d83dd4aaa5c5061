package service

import (
	"context"
	"sort"
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

type substituteRepository interface {
	ListRecords(ctx context.Context) ([]models.SubstituteRecord, error)
	Apply(ctx context.Context, change models.LedgerChange) error
}

// CreateSubstituteRequest is the payload for recording a substitution.
type CreateSubstituteRequest struct {
	TeacherID string `json:"teacherId" validate:"required"`
	Date      string `json:"date" validate:"required"`
	Time      string `json:"time" validate:"required"`
	ClassRef  string `json:"classRef" validate:"required"`
	Reason    string `json:"reason" validate:"omitempty,max=500"`
}

// UpdateSubstituteRequest corrects a record. Nil fields keep their value.
type UpdateSubstituteRequest struct {
	TeacherID *string `json:"teacherId" validate:"omitempty,min=1"`
	Date      *string `json:"date" validate:"omitempty"`
	Time      *string `json:"time" validate:"omitempty"`
	ClassRef  *string `json:"classRef" validate:"omitempty"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
}

// SubstituteService is the ledger of covered substitutions. Every write keeps
// the covering teachers' history counters in step with the records.
type SubstituteService struct {
	mu        *sync.RWMutex
	repo      substituteRepository
	teachers  *TeacherService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time

	records map[string]*models.SubstituteRecord
	order   []string
	version uint64
}

// NewSubstituteService constructs a SubstituteService.
func NewSubstituteService(mu *sync.RWMutex, repo substituteRepository, teachers *TeacherService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SubstituteService {
	if repo == nil {
		repo = memoryStore{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubstituteService{
		mu:        mu,
		repo:      repo,
		teachers:  teachers,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		records:   make(map[string]*models.SubstituteRecord),
	}
}

// Load replaces the in-memory ledger with the persisted one.
func (s *SubstituteService) Load(ctx context.Context) error {
	records, err := s.repo.ListRecords(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitute records")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceAllLocked(records)
	return nil
}

// Append records a substitution and credits the covering teacher.
func (s *SubstituteService) Append(ctx context.Context, req CreateSubstituteRequest) (*models.SubstituteRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid substitute payload")
	}
	record, err := buildRecord(req.TeacherID, req.Date, req.Time, req.ClassRef, req.Reason)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	teacher, ok := s.teachers.getLocked(record.TeacherID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnknownTeacher, "teacher does not exist")
	}
	now := s.now()
	record.ID = uuid.NewString()
	record.CreatedAt = now
	record.UpdatedAt = now

	credited := teacher.Clone()
	creditHistory(&credited.SubstituteHistory, record)

	change := models.LedgerChange{Upsert: record, Teachers: []*models.Teacher{credited}}
	if err := s.applyLocked(ctx, change); err != nil {
		return nil, err
	}
	s.metrics.IncLedgerOperation("append")
	s.logger.Info("substitute recorded",
		zap.String("actor", actorFrom(ctx)),
		zap.String("record_id", record.ID),
		zap.String("teacher_id", record.TeacherID),
		zap.String("date", record.Date),
		zap.String("time", record.Time),
	)
	return cloneRecord(record), nil
}

// Correct replaces a record in place, moving its effect from the old teacher
// to the new one.
func (s *SubstituteService) Correct(ctx context.Context, id string, req UpdateSubstituteRequest) (*models.SubstituteRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid substitute payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "substitute record not found")
	}

	teacherID, date, slot, class, reason := current.TeacherID, current.Date, current.Time, current.ClassRef.String(), current.Reason
	if req.TeacherID != nil {
		teacherID = *req.TeacherID
	}
	if req.Date != nil {
		date = *req.Date
	}
	if req.Time != nil {
		slot = *req.Time
	}
	if req.ClassRef != nil {
		class = *req.ClassRef
	}
	if req.Reason != nil {
		reason = *req.Reason
	}
	next, err := buildRecord(teacherID, date, slot, class, reason)
	if err != nil {
		return nil, err
	}
	newTeacher, ok := s.teachers.getLocked(next.TeacherID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnknownTeacher, "teacher does not exist")
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now()

	var touched []*models.Teacher
	credited := newTeacher.Clone()
	if old, ok := s.teachers.getLocked(current.TeacherID); ok && old.ID != credited.ID {
		debited := old.Clone()
		debitHistory(&debited.SubstituteHistory, current)
		touched = append(touched, debited)
	} else if ok {
		debitHistory(&credited.SubstituteHistory, current)
	}
	creditHistory(&credited.SubstituteHistory, next)
	touched = append(touched, credited)

	if err := s.applyLocked(ctx, models.LedgerChange{Upsert: next, Teachers: touched}); err != nil {
		return nil, err
	}
	s.metrics.IncLedgerOperation("correct")
	s.logger.Info("substitute corrected",
		zap.String("actor", actorFrom(ctx)),
		zap.String("record_id", next.ID),
		zap.String("from_teacher_id", current.TeacherID),
		zap.String("to_teacher_id", next.TeacherID),
	)
	return cloneRecord(next), nil
}

// Remove deletes a record and reverses its effect.
func (s *SubstituteService) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "substitute record not found")
	}
	change := models.LedgerChange{DeleteID: id}
	if teacher, ok := s.teachers.getLocked(current.TeacherID); ok {
		debited := teacher.Clone()
		debitHistory(&debited.SubstituteHistory, current)
		change.Teachers = []*models.Teacher{debited}
	}
	if err := s.applyLocked(ctx, change); err != nil {
		return err
	}
	s.metrics.IncLedgerOperation("remove")
	s.logger.Info("substitute removed",
		zap.String("actor", actorFrom(ctx)),
		zap.String("record_id", id),
		zap.String("teacher_id", current.TeacherID),
	)
	return nil
}

// Get returns a record by id.
func (s *SubstituteService) Get(ctx context.Context, id string) (*models.SubstituteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "substitute record not found")
	}
	return cloneRecord(record), nil
}

// ListFor returns records matching filter, newest date first.
func (s *SubstituteService) ListFor(ctx context.Context, filter models.SubstituteFilter) []models.SubstituteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SubstituteRecord, 0, len(s.order))
	for _, r := range s.allLocked() {
		if filter.Matches(*r) {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Version increases on every ledger mutation.
func (s *SubstituteService) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// applyLocked persists one ledger change, then swaps it into memory.
func (s *SubstituteService) applyLocked(ctx context.Context, change models.LedgerChange) error {
	if err := s.repo.Apply(ctx, change); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist substitute record")
	}
	if change.Upsert != nil {
		if _, exists := s.records[change.Upsert.ID]; !exists {
			s.order = append(s.order, change.Upsert.ID)
		}
		s.records[change.Upsert.ID] = cloneRecord(change.Upsert)
	}
	if change.DeleteID != "" {
		delete(s.records, change.DeleteID)
		for i, id := range s.order {
			if id == change.DeleteID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.teachers.swapLocked(change.Teachers)
	s.version++
	return nil
}

// allLocked returns stored records in insertion order. Callers must not
// mutate them.
func (s *SubstituteService) allLocked() []*models.SubstituteRecord {
	out := make([]*models.SubstituteRecord, 0, len(s.order))
	for _, id := range s.order {
		if r, ok := s.records[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *SubstituteService) replaceAllLocked(records []models.SubstituteRecord) {
	sorted := append([]models.SubstituteRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })
	s.records = make(map[string]*models.SubstituteRecord, len(sorted))
	s.order = make([]string, 0, len(sorted))
	for i := range sorted {
		s.records[sorted[i].ID] = cloneRecord(&sorted[i])
		s.order = append(s.order, sorted[i].ID)
	}
	s.version++
}

// buildRecord validates and normalizes record fields. The slot label must be
// well formed but need not be in the current registry.
func buildRecord(teacherID, date, slot, class, reason string) (*models.SubstituteRecord, error) {
	record := &models.SubstituteRecord{
		TeacherID: strings.TrimSpace(teacherID),
		Date:      strings.TrimSpace(date),
		Time:      strings.TrimSpace(slot),
		Reason:    strings.TrimSpace(reason),
	}
	if _, err := time.Parse(models.DateLayout, record.Date); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, "date must be formatted as YYYY-MM-DD")
	}
	if err := schedule.ValidateSlotLabel(record.Time); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, err.Error())
	}
	ref, err := schedule.ParseClassRef(class)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, err.Error())
	}
	record.ClassRef = ref
	return record, nil
}

func creditHistory(h *models.SubstituteHistory, r *models.SubstituteRecord) {
	h.TotalCount++
	h.ThisMonthCount++
	h.Entries = append(h.Entries, r.Entry())
}

// debitHistory reverses creditHistory. Counters floor at zero and only the
// first matching entry is removed.
func debitHistory(h *models.SubstituteHistory, r *models.SubstituteRecord) {
	h.TotalCount = max(0, h.TotalCount-1)
	h.ThisMonthCount = max(0, h.ThisMonthCount-1)
	entry := r.Entry()
	for i, e := range h.Entries {
		if e == entry {
			h.Entries = append(h.Entries[:i:i], h.Entries[i+1:]...)
			break
		}
	}
	if h.Entries == nil {
		h.Entries = []models.HistoryEntry{}
	}
}

func cloneRecord(r *models.SubstituteRecord) *models.SubstituteRecord {
	cp := *r
	return &cp
}
