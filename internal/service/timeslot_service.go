package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type settingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
}

// ReplaceTimeSlotsRequest is the payload for replacing the slot registry.
type ReplaceTimeSlotsRequest struct {
	TimeSlots []string `json:"timeSlots" validate:"required,min=1"`
}

// TimeSlotService owns the ordered registry of slot labels.
type TimeSlotService struct {
	mu       *sync.RWMutex
	repo     settingRepository
	logger   *zap.Logger
	defaults []string

	slots       []string
	subscribers []func([]string)
}

// NewTimeSlotService constructs the registry. defaults replaces the built-in
// sequence when it is a valid slot list.
func NewTimeSlotService(mu *sync.RWMutex, repo settingRepository, defaults []string, logger *zap.Logger) *TimeSlotService {
	if mu == nil {
		mu = &sync.RWMutex{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if repo == nil {
		repo = memoryStore{}
	}
	fallback := schedule.DefaultSlots()
	if len(defaults) > 0 {
		normalized := schedule.NormalizeSlots(defaults)
		if err := schedule.ValidateSlots(normalized); err == nil {
			fallback = normalized
		} else {
			logger.Warn("ignoring invalid default time slots", zap.Strings("slots", defaults), zap.Error(err))
		}
	}
	return &TimeSlotService{mu: mu, repo: repo, logger: logger, defaults: fallback}
}

// Load reads the persisted registry. A missing or broken entry leaves the
// defaults in place.
func (s *TimeSlotService) Load(ctx context.Context) error {
	raw, err := s.repo.Get(ctx, models.SettingTimeSlots)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slots")
	}
	var slots []string
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		s.logger.Warn("stored time slots are not valid json, using defaults", zap.Error(err))
		return nil
	}
	if err := schedule.ValidateSlots(slots); err != nil {
		s.logger.Warn("stored time slots are invalid, using defaults", zap.Error(err))
		return nil
	}
	s.mu.Lock()
	s.slots = slots
	s.mu.Unlock()
	return nil
}

// Get returns the ordered slot labels. Never empty.
func (s *TimeSlotService) Get() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked()
}

// Contains reports whether label is a current registry entry.
func (s *TimeSlotService) Contains(label string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.containsLocked(label)
}

// Subscribe registers fn to receive the new list after every successful
// replacement. fn runs after the registry lock is released.
func (s *TimeSlotService) Subscribe(fn func([]string)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// ReplaceAll swaps the whole registry.
func (s *TimeSlotService) ReplaceAll(ctx context.Context, labels []string) ([]string, error) {
	normalized := schedule.NormalizeSlots(labels)
	if err := schedule.ValidateSlots(normalized); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, err.Error())
	}

	s.mu.Lock()
	if err := s.persistLocked(ctx, normalized); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.slots = normalized
	s.mu.Unlock()

	s.logger.Info("time slot registry replaced", zap.Strings("slots", normalized))
	s.publish()
	return append([]string(nil), normalized...), nil
}

func (s *TimeSlotService) getLocked() []string {
	if len(s.slots) == 0 {
		return append([]string(nil), s.defaults...)
	}
	return append([]string(nil), s.slots...)
}

func (s *TimeSlotService) containsLocked(label string) bool {
	for _, slot := range s.getLocked() {
		if slot == label {
			return true
		}
	}
	return false
}

func (s *TimeSlotService) persistLocked(ctx context.Context, slots []string) error {
	payload, err := json.Marshal(slots)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode time slots")
	}
	if err := s.repo.Put(ctx, models.SettingTimeSlots, string(payload)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist time slots")
	}
	return nil
}

// setLocked swaps the in-memory registry; nil restores the defaults. The
// caller has already persisted the value.
func (s *TimeSlotService) setLocked(slots []string) {
	s.slots = append([]string(nil), slots...)
}

// publish notifies subscribers. It must be called without holding the lock.
func (s *TimeSlotService) publish() {
	s.mu.RLock()
	slots := s.getLocked()
	subscribers := make([]func([]string), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.RUnlock()
	for _, fn := range subscribers {
		fn(append([]string(nil), slots...))
	}
}
