package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/pkg/storage"
)

// Repositories bundles the persistence adapters. Nil members fall back to the
// in-memory store.
type Repositories struct {
	Teachers    teacherRepository
	Substitutes substituteRepository
	Settings    rolloverRepository
	Snapshots   snapshotRepository
}

// Options carries the non-repository dependencies of the service layer.
type Options struct {
	DefaultSlots  []string
	Location      *time.Location
	Cache         *CacheService
	StatsCacheTTL time.Duration
	Files         fileStorage
	Signer        *storage.SignedURLSigner
	Export        ExportConfig
	Auth          AuthConfig
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
}

// Services is the wired service layer. Every service shares one lock so that
// each operation observes and produces a consistent state.
type Services struct {
	TimeSlots    *TimeSlotService
	Teachers     *TeacherService
	Schedules    *ScheduleService
	Availability *AvailabilityService
	Candidates   *CandidateService
	Substitutes  *SubstituteService
	Statistics   *StatisticsService
	Exports      *ExportService
	Backup       *BackupService
	Rollover     *RolloverService
	Auth         *AuthService
	Metrics      *MetricsService
	Cache        *CacheService
}

// NewServices wires every service around a single lock.
func NewServices(repos Repositories, opts Options) *Services {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := opts.Validator
	if validate == nil {
		validate = validator.New()
	}
	mu := &sync.RWMutex{}
	slots := NewTimeSlotService(mu, repos.Settings, opts.DefaultSlots, logger.Named("time_slots"))
	teachers := NewTeacherService(mu, repos.Teachers, slots, validate, logger.Named("teachers"))
	availability := NewAvailabilityService(mu, teachers, slots, opts.Metrics, logger.Named("availability"))
	ledger := NewSubstituteService(mu, repos.Substitutes, teachers, opts.Metrics, validate, logger.Named("substitutes"))
	statistics := NewStatisticsService(mu, teachers, ledger, opts.Cache, opts.Location, opts.StatsCacheTTL, logger.Named("statistics"))

	slots.Subscribe(opts.Metrics.SetTimeSlots)

	return &Services{
		TimeSlots:    slots,
		Teachers:     teachers,
		Schedules:    NewScheduleService(mu, teachers, slots, validate, logger.Named("schedules")),
		Availability: availability,
		Candidates:   NewCandidateService(mu, teachers, slots, opts.Metrics, logger.Named("candidates")),
		Substitutes:  ledger,
		Statistics:   statistics,
		Exports:      NewExportService(mu, teachers, ledger, statistics, opts.Files, opts.Signer, opts.Export, validate, logger.Named("exports")),
		Backup:       NewBackupService(mu, repos.Snapshots, slots, teachers, ledger, availability, opts.Location, logger.Named("backup")),
		Rollover:     NewRolloverService(mu, repos.Settings, teachers, ledger, opts.Location, logger.Named("rollover")),
		Auth:         NewAuthService(logger.Named("auth"), opts.Auth),
		Metrics:      opts.Metrics,
		Cache:        opts.Cache,
	}
}

// Load reads the persisted state and derives homeroom grids once.
func (s *Services) Load(ctx context.Context) error {
	if err := s.TimeSlots.Load(ctx); err != nil {
		return err
	}
	if err := s.Teachers.Load(ctx); err != nil {
		return err
	}
	if err := s.Substitutes.Load(ctx); err != nil {
		return err
	}
	if err := s.Rollover.Load(ctx); err != nil {
		return err
	}
	s.Metrics.SetTimeSlots(s.TimeSlots.Get())
	_, err := s.Availability.Recompute(ctx)
	return err
}
