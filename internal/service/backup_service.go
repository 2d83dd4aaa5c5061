package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type snapshotRepository interface {
	ReplaceAll(ctx context.Context, snapshot models.Snapshot) error
}

// BackupService exports and restores the whole dataset as one snapshot.
type BackupService struct {
	mu           *sync.RWMutex
	repo         snapshotRepository
	slots        *TimeSlotService
	teachers     *TeacherService
	ledger       *SubstituteService
	availability *AvailabilityService
	location     *time.Location
	logger       *zap.Logger
	now          func() time.Time
}

// NewBackupService constructs a BackupService.
func NewBackupService(mu *sync.RWMutex, repo snapshotRepository, slots *TimeSlotService, teachers *TeacherService, ledger *SubstituteService, availability *AvailabilityService, loc *time.Location, logger *zap.Logger) *BackupService {
	if repo == nil {
		repo = memoryStore{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{
		mu:           mu,
		repo:         repo,
		slots:        slots,
		teachers:     teachers,
		ledger:       ledger,
		availability: availability,
		location:     loc,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Export returns a consistent copy of every collection.
func (s *BackupService) Export(ctx context.Context) *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exportedAt := s.now()
	snapshot := &models.Snapshot{
		Teachers:          make([]models.Teacher, 0),
		SubstituteRecords: make([]models.SubstituteRecord, 0),
		TimeSlots:         s.slots.getLocked(),
		ExportedAt:        &exportedAt,
	}
	for _, t := range s.teachers.allLocked() {
		snapshot.Teachers = append(snapshot.Teachers, *t.Clone())
	}
	for _, r := range s.ledger.allLocked() {
		snapshot.SubstituteRecords = append(snapshot.SubstituteRecords, *r)
	}
	return snapshot
}

// Restore replaces every collection present in the snapshot. The snapshot is
// validated completely before anything is written; a nil collection keeps the
// current one. Teacher counters are rebuilt from the resulting ledger and the
// homeroom grids are derived again.
func (s *BackupService) Restore(ctx context.Context, snapshot models.Snapshot) (*models.RestoreSummary, error) {
	s.mu.Lock()

	summary := &models.RestoreSummary{}
	slots := s.slots.getLocked()
	if snapshot.TimeSlots != nil {
		normalized := schedule.NormalizeSlots(snapshot.TimeSlots)
		if err := schedule.ValidateSlots(normalized); err != nil {
			s.mu.Unlock()
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, "timeSlots: "+err.Error())
		}
		slots = normalized
		summary.TimeSlots = intPtr(len(slots))
	}

	var teachers []*models.Teacher
	if snapshot.Teachers != nil {
		prepared, err := s.prepareTeachers(snapshot.Teachers, slots)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		teachers = prepared
		summary.Teachers = intPtr(len(teachers))
	} else {
		for _, t := range s.teachers.allLocked() {
			teachers = append(teachers, t.Clone())
		}
	}

	var records []*models.SubstituteRecord
	if snapshot.SubstituteRecords != nil {
		prepared, err := s.prepareRecords(snapshot.SubstituteRecords)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		records = prepared
		summary.SubstituteRecords = intPtr(len(records))
	} else {
		for _, r := range s.ledger.allLocked() {
			records = append(records, cloneRecord(r))
		}
	}

	thisMonth, lastMonth := periodsAt(s.now(), s.location)
	for _, t := range teachers {
		rebuilt := rebuildHistory(t.ID, records, thisMonth, lastMonth)
		if !sameCounters(t.SubstituteHistory, rebuilt) {
			summary.Reconciled = append(summary.Reconciled, t.ID)
		}
		t.SubstituteHistory = rebuilt
	}

	next := models.Snapshot{
		Teachers:          make([]models.Teacher, 0, len(teachers)),
		SubstituteRecords: make([]models.SubstituteRecord, 0, len(records)),
		TimeSlots:         slots,
	}
	for _, t := range teachers {
		next.Teachers = append(next.Teachers, *t)
	}
	for _, r := range records {
		next.SubstituteRecords = append(next.SubstituteRecords, *r)
	}
	if err := s.repo.ReplaceAll(ctx, next); err != nil {
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore snapshot")
	}

	s.slots.setLocked(slots)
	s.teachers.replaceAllLocked(next.Teachers)
	s.ledger.replaceAllLocked(next.SubstituteRecords)

	report, err := s.availability.recomputeLocked(ctx)
	if err != nil {
		s.logger.Warn("derivation after restore failed", zap.Error(err))
	} else {
		summary.Derivation = report
	}
	s.mu.Unlock()

	if snapshot.TimeSlots != nil {
		s.slots.publish()
	}
	s.logger.Info("snapshot restored",
		zap.String("actor", actorFrom(ctx)),
		zap.Int("teachers", len(next.Teachers)),
		zap.Int("substitute_records", len(next.SubstituteRecords)),
		zap.Int("time_slots", len(slots)),
		zap.Int("reconciled", len(summary.Reconciled)),
	)
	return summary, nil
}

// Reset clears teachers and records and restores the default time slots.
func (s *BackupService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defaults := append([]string(nil), s.slots.defaults...)
	empty := models.Snapshot{
		Teachers:          []models.Teacher{},
		SubstituteRecords: []models.SubstituteRecord{},
		TimeSlots:         defaults,
	}
	if err := s.repo.ReplaceAll(ctx, empty); err != nil {
		s.mu.Unlock()
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset data")
	}
	s.slots.setLocked(nil)
	s.teachers.replaceAllLocked(nil)
	s.ledger.replaceAllLocked(nil)
	s.mu.Unlock()

	s.slots.publish()
	s.logger.Warn("all substitute data reset", zap.String("actor", actorFrom(ctx)))
	return nil
}

func (s *BackupService) prepareTeachers(input []models.Teacher, slots []string) ([]*models.Teacher, error) {
	out := make([]*models.Teacher, 0, len(input))
	seen := make(map[string]struct{}, len(input))
	now := s.now()
	for i := range input {
		t := input[i].Clone()
		t.ID = strings.TrimSpace(t.ID)
		t.Name = strings.TrimSpace(t.Name)
		if t.ID == "" {
			return nil, restoreError("teachers", i, "id is required")
		}
		if _, dup := seen[t.ID]; dup {
			return nil, restoreError("teachers", i, fmt.Sprintf("duplicate id %q", t.ID))
		}
		seen[t.ID] = struct{}{}
		if t.Name == "" {
			return nil, restoreError("teachers", i, "name is required")
		}
		t.Role = models.TeacherRole(strings.ToLower(string(t.Role)))
		switch t.Role {
		case models.TeacherRoleSpecialist:
			t.Homeroom = nil
			if t.Specialist == nil {
				t.Specialist = schedule.NewSpecialistGrid(slots)
			}
		case models.TeacherRoleHomeroom:
			t.Specialist = nil
			if t.Homeroom == nil {
				t.Homeroom = schedule.PendingHomeroomGrid(slots)
			}
		default:
			return nil, restoreError("teachers", i, fmt.Sprintf("unknown role %q", t.Role))
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *BackupService) prepareRecords(input []models.SubstituteRecord) ([]*models.SubstituteRecord, error) {
	out := make([]*models.SubstituteRecord, 0, len(input))
	seen := make(map[string]struct{}, len(input))
	now := s.now()
	for i, r := range input {
		record, err := buildRecord(r.TeacherID, r.Date, r.Time, r.ClassRef.String(), r.Reason)
		if err != nil {
			return nil, restoreError("substituteRecords", i, appErrors.FromError(err).Message)
		}
		if record.TeacherID == "" {
			return nil, restoreError("substituteRecords", i, "teacherId is required")
		}
		record.ID = strings.TrimSpace(r.ID)
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if _, dup := seen[record.ID]; dup {
			return nil, restoreError("substituteRecords", i, fmt.Sprintf("duplicate id %q", record.ID))
		}
		seen[record.ID] = struct{}{}
		record.CreatedAt, record.UpdatedAt = r.CreatedAt, r.UpdatedAt
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		if record.UpdatedAt.IsZero() {
			record.UpdatedAt = record.CreatedAt
		}
		out = append(out, record)
	}
	return out, nil
}

func restoreError(collection string, index int, reason string) error {
	return appErrors.Clone(appErrors.ErrInvalidFormat, fmt.Sprintf("%s[%d]: %s", collection, index, reason))
}

func sameCounters(a, b models.SubstituteHistory) bool {
	return a.TotalCount == b.TotalCount &&
		a.ThisMonthCount == b.ThisMonthCount &&
		a.LastMonthCount == b.LastMonthCount &&
		len(a.Entries) == len(b.Entries)
}

func intPtr(v int) *int {
	return &v
}
